package services

import (
	"time"

	"github.com/creatorpay/backend/internal/models"
)

// MovementResponse is the wire shape of a ledger movement. Amounts cross the
// API as two-decimal strings; minor-unit integers stay internal.
type MovementResponse struct {
	ID            string    `json:"id"`
	InfluencerID  string    `json:"influencer_id"`
	Kind          string    `json:"kind"`
	Amount        string    `json:"amount"`
	RatePct       int       `json:"rate_pct,omitempty"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   string    `json:"reference_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewMovementResponse(m *models.Movement) MovementResponse {
	return MovementResponse{
		ID:            m.ID,
		InfluencerID:  m.InfluencerID,
		Kind:          m.Kind,
		Amount:        FormatAmount(m.Amount),
		RatePct:       m.RatePct,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		CreatedAt:     m.CreatedAt,
	}
}

// PayoutResponse is the wire shape of a payout.
type PayoutResponse struct {
	ID           string     `json:"id"`
	InfluencerID string     `json:"influencer_id"`
	Amount       string     `json:"amount"`
	Status       string     `json:"status"`
	MovementID   *string    `json:"movement_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
}

func NewPayoutResponse(p *models.Payout) PayoutResponse {
	return PayoutResponse{
		ID:           p.ID,
		InfluencerID: p.InfluencerID,
		Amount:       FormatAmount(p.Amount),
		Status:       p.Status,
		MovementID:   p.MovementID,
		CreatedAt:    p.CreatedAt,
		DecidedAt:    p.DecidedAt,
		PaidAt:       p.PaidAt,
	}
}
