package models

import (
	"time"
)

const (
	MovementCredit = "CREDIT"
	MovementDebit  = "DEBIT"

	ReferenceSale   = "sale"
	ReferencePayout = "payout"
)

// Movement is a single immutable ledger entry. Rows are only ever inserted;
// corrections are made with a compensating movement, never an update.
type Movement struct {
	ID            string    `json:"id" db:"id"`
	InfluencerID  string    `json:"influencer_id" db:"influencer_id"`
	Kind          string    `json:"kind" db:"kind"` // CREDIT or DEBIT
	Amount        int64     `json:"amount" db:"amount"` // in minor units
	RatePct       int       `json:"rate_pct,omitempty" db:"rate_pct"` // rate applied at sale time, credits only
	ReferenceType string    `json:"reference_type" db:"reference_type"` // sale or payout
	ReferenceID   string    `json:"reference_id" db:"reference_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Balance is derived from movements and open payouts on every read.
// There is no stored balance column anywhere.
type Balance struct {
	InfluencerID string `json:"influencer_id"`
	Available    int64  `json:"available"` // sum of credits minus sum of debits
	Reserved     int64  `json:"reserved"`  // sum of pending/approved payout amounts
	Spendable    int64  `json:"spendable"` // available minus reserved
}
