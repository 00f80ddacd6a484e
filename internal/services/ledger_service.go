package services

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/creatorpay/backend/internal/models"
)

// LedgerService owns the movement store and the balance derivation. Movements
// are append-only: this service exposes no update or delete path, and balance
// is recomputed from the rows on every read.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx so balance sums can run
// standalone or inside a reserve-check-write transaction.
type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

// LockInfluencer takes the per-influencer row lock that serializes all ledger
// writes for one influencer. Writers for different influencers do not contend.
func (s *LedgerService) LockInfluencer(tx *sql.Tx, influencerID string) error {
	var id string
	err := tx.QueryRow(`SELECT id FROM influencers WHERE id = $1 FOR UPDATE`, influencerID).Scan(&id)
	if err == sql.ErrNoRows {
		return ErrUnknownInfluencer
	}
	return err
}

// AppendMovementTx inserts one immutable movement inside the caller's
// transaction. A duplicate (reference_type, reference_id) means another writer
// already recorded this reference; the caller re-reads and treats it as the
// idempotent no-op path.
func (s *LedgerService) AppendMovementTx(tx *sql.Tx, m *models.Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	_, err := tx.Exec(`
		INSERT INTO movements (id, influencer_id, kind, amount, rate_pct, reference_type, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.InfluencerID, m.Kind, m.Amount, m.RatePct, m.ReferenceType, m.ReferenceID, m.CreatedAt)

	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

// MovementByReference returns the movement recorded for an external reference,
// or ErrNotFound via sql.ErrNoRows mapped by the caller.
func (s *LedgerService) MovementByReference(referenceType, referenceID string) (*models.Movement, error) {
	return s.movementByReference(s.db, referenceType, referenceID)
}

// MovementByReferenceTx is the in-transaction variant used on insert races.
func (s *LedgerService) MovementByReferenceTx(tx *sql.Tx, referenceType, referenceID string) (*models.Movement, error) {
	return s.movementByReference(tx, referenceType, referenceID)
}

func (s *LedgerService) movementByReference(q rowQuerier, referenceType, referenceID string) (*models.Movement, error) {
	m := &models.Movement{}
	err := q.QueryRow(`
		SELECT id, influencer_id, kind, amount, rate_pct, reference_type, reference_id, created_at
		FROM movements
		WHERE reference_type = $1 AND reference_id = $2`,
		referenceType, referenceID).Scan(
		&m.ID, &m.InfluencerID, &m.Kind, &m.Amount, &m.RatePct, &m.ReferenceType, &m.ReferenceID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetBalance derives available, reserved and spendable for an influencer.
// Nothing here reads a cached counter; the sums are the source of truth.
func (s *LedgerService) GetBalance(influencerID string) (*models.Balance, error) {
	if err := s.influencerExists(influencerID); err != nil {
		return nil, err
	}
	return s.balance(s.db, influencerID)
}

// BalanceTx computes the balance inside an open transaction. With the
// influencer row locked, the result cannot be invalidated by a concurrent
// writer before the transaction commits.
func (s *LedgerService) BalanceTx(tx *sql.Tx, influencerID string) (*models.Balance, error) {
	return s.balance(tx, influencerID)
}

func (s *LedgerService) balance(q rowQuerier, influencerID string) (*models.Balance, error) {
	var available int64
	err := q.QueryRow(`
		SELECT COALESCE(SUM(CASE WHEN kind = 'CREDIT' THEN amount ELSE -amount END), 0)
		FROM movements
		WHERE influencer_id = $1`, influencerID).Scan(&available)
	if err != nil {
		return nil, fmt.Errorf("summing movements: %w", err)
	}

	var reserved int64
	err = q.QueryRow(`
		SELECT COALESCE(SUM(amount), 0)
		FROM payouts
		WHERE influencer_id = $1 AND status IN ('PENDING', 'APPROVED')`, influencerID).Scan(&reserved)
	if err != nil {
		return nil, fmt.Errorf("summing reservations: %w", err)
	}

	return &models.Balance{
		InfluencerID: influencerID,
		Available:    available,
		Reserved:     reserved,
		Spendable:    available - reserved,
	}, nil
}

func (s *LedgerService) influencerExists(influencerID string) error {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM influencers WHERE id = $1)`, influencerID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUnknownInfluencer
	}
	return nil
}

// ListMovements returns the influencer's movements newest first.
func (s *LedgerService) ListMovements(influencerID string, limit, offset int) ([]models.Movement, error) {
	if err := s.influencerExists(influencerID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT id, influencer_id, kind, amount, rate_pct, reference_type, reference_id, created_at
		FROM movements
		WHERE influencer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, influencerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := []models.Movement{}
	for rows.Next() {
		var m models.Movement
		if err := rows.Scan(&m.ID, &m.InfluencerID, &m.Kind, &m.Amount, &m.RatePct,
			&m.ReferenceType, &m.ReferenceID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ReconciliationReport compares the single-pass balance sum against
// independently computed credit and debit totals.
type ReconciliationReport struct {
	InfluencerID string `json:"influencer_id"`
	Available    int64  `json:"available"`
	Credits      int64  `json:"credits"`
	Debits       int64  `json:"debits"`
	Movements    int64  `json:"movements"`
	Consistent   bool   `json:"consistent"`
}

// Reconcile recomputes the balance two ways and flags any divergence. With no
// materialized balance stored this should never trip; it exists so operators
// can prove that, and so a future cache has its mandatory check ready.
func (s *LedgerService) Reconcile(influencerID string) (*ReconciliationReport, error) {
	if err := s.influencerExists(influencerID); err != nil {
		return nil, err
	}

	balance, err := s.balance(s.db, influencerID)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{InfluencerID: influencerID, Available: balance.Available}
	err = s.db.QueryRow(`
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE kind = 'CREDIT'), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind = 'DEBIT'), 0),
			COUNT(*)
		FROM movements
		WHERE influencer_id = $1`, influencerID).Scan(&report.Credits, &report.Debits, &report.Movements)
	if err != nil {
		return nil, err
	}

	report.Consistent = report.Credits-report.Debits == report.Available
	if !report.Consistent {
		log.Printf("[BALANCE] Reconciliation mismatch for influencer %s: available=%d credits=%d debits=%d",
			influencerID, report.Available, report.Credits, report.Debits)
	}
	return report, nil
}
