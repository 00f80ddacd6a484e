package models

import (
	"time"
)

// Influencer is the identity every ledger is keyed by. The row carries no
// balance; it doubles as the per-influencer lock anchor for serialized writes.
type Influencer struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DiscountCode belongs to one influencer and carries the commission rate as of
// its last update. The rate actually applied to a sale is copied onto the
// credit movement, so later edits never rewrite history.
type DiscountCode struct {
	CodeID       string    `json:"code_id" db:"code_id"`
	InfluencerID string    `json:"influencer_id" db:"influencer_id"`
	RatePct      int       `json:"commission_rate" db:"commission_rate"` // percentage, 1-100
	LandingURL   string    `json:"landing_url" db:"landing_url"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Sale is the external fact delivered by the intake collaborator. The sale_id
// is the idempotency key: one sale maps to at most one credit movement.
type Sale struct {
	SaleID       string    `json:"sale_id" db:"sale_id"`
	InfluencerID string    `json:"influencer_id" db:"influencer_id"`
	CodeID       string    `json:"code_id" db:"code_id"`
	Amount       int64     `json:"amount" db:"amount"` // in minor units
	RatePct      int       `json:"rate_pct" db:"rate_pct"`
	Commission   int64     `json:"commission" db:"commission"` // in minor units
	OccurredAt   time.Time `json:"occurred_at" db:"occurred_at"`
	ProcessedAt  time.Time `json:"processed_at" db:"processed_at"`
}
