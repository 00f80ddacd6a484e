package models

import (
	"time"
)

const (
	PayoutPending  = "PENDING"
	PayoutApproved = "APPROVED"
	PayoutRejected = "REJECTED"
	PayoutPaid     = "PAID"
)

// Payout tracks a withdrawal request through its lifecycle.
// PENDING -> APPROVED -> PAID, or PENDING -> REJECTED. Transitions are
// one-way and the requested amount never changes after creation.
type Payout struct {
	ID           string     `json:"id" db:"id"`
	InfluencerID string     `json:"influencer_id" db:"influencer_id"`
	Amount       int64      `json:"amount" db:"amount"` // in minor units
	Status       string     `json:"status" db:"status"`
	MovementID   *string    `json:"movement_id,omitempty" db:"movement_id"` // settling debit, set on PAID only
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	DecidedAt    *time.Time `json:"decided_at,omitempty" db:"decided_at"`
	PaidAt       *time.Time `json:"paid_at,omitempty" db:"paid_at"`
}

// Terminal reports whether no further transition is allowed.
func (p *Payout) Terminal() bool {
	return p.Status == PayoutRejected || p.Status == PayoutPaid
}
