package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/creatorpay/backend/internal/models"
)

// PayoutService drives a payout through PENDING -> APPROVED -> PAID (or
// PENDING -> REJECTED). It is the only writer of debit movements.
type PayoutService struct {
	db         *sql.DB
	ledger     *LedgerService
	settlement *SettlementService
	validator  *ValidationHelper
}

func NewPayoutService(db *sql.DB, ledger *LedgerService, settlement *SettlementService) *PayoutService {
	return &PayoutService{
		db:         db,
		ledger:     ledger,
		settlement: settlement,
		validator:  NewValidationHelper(),
	}
}

// CreatePayout handles a payout request
// @Summary Request a payout
// @Description Reserve spendable balance for a payout request. Check and reservation are atomic.
// @Tags payouts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{influencerId=string,amount=string} true "Payout request"
// @Success 201 {object} PayoutResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /payouts [post]
func (s *PayoutService) CreatePayout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InfluencerID string `json:"influencerId" validate:"required,uuid4"`
		Amount       string `json:"amount" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := ParseAmount(req.Amount)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	payout, err := s.Create(req.InfluencerID, amount)
	if err != nil {
		log.Printf("[PAYOUT] Create failed for influencer %s: %v", req.InfluencerID, err)
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(NewPayoutResponse(payout))
}

// Create reserves spendable balance and opens a payout in PENDING. The
// balance check and the insert share one transaction with the influencer row
// locked, so two concurrent requests can never both reserve the same funds.
func (s *PayoutService) Create(influencerID string, amount int64) (*models.Payout, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.ledger.LockInfluencer(tx, influencerID); err != nil {
		return nil, err
	}

	balance, err := s.ledger.BalanceTx(tx, influencerID)
	if err != nil {
		return nil, err
	}
	if amount > balance.Spendable {
		return nil, ErrInsufficientBalance
	}

	payout := &models.Payout{
		ID:           uuid.New().String(),
		InfluencerID: influencerID,
		Amount:       amount,
		Status:       models.PayoutPending,
		CreatedAt:    time.Now(),
	}
	_, err = tx.Exec(`
		INSERT INTO payouts (id, influencer_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		payout.ID, payout.InfluencerID, payout.Amount, payout.Status, payout.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[PAYOUT] Created payout %s: %d reserved for influencer %s (spendable was %d)",
		payout.ID, amount, influencerID, balance.Spendable)
	return payout, nil
}

// ApprovePayout handles an admin approval
// @Summary Approve payout
// @Description Move a pending payout to approved. Re-approving an approved payout is a no-op.
// @Tags payouts
// @Produce json
// @Security BearerAuth
// @Param payoutId path string true "Payout ID"
// @Success 200 {object} PayoutResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /payouts/{payoutId}/approve [post]
func (s *PayoutService) ApprovePayout(w http.ResponseWriter, r *http.Request) {
	s.decide(w, chi.URLParam(r, "payoutId"), models.PayoutApproved)
}

// RejectPayout handles an admin rejection
// @Summary Reject payout
// @Description Move a pending payout to rejected, releasing its reservation. No movement is written.
// @Tags payouts
// @Produce json
// @Security BearerAuth
// @Param payoutId path string true "Payout ID"
// @Success 200 {object} PayoutResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /payouts/{payoutId}/reject [post]
func (s *PayoutService) RejectPayout(w http.ResponseWriter, r *http.Request) {
	s.decide(w, chi.URLParam(r, "payoutId"), models.PayoutRejected)
}

func (s *PayoutService) decide(w http.ResponseWriter, payoutID, target string) {
	payout, err := s.Decide(payoutID, target)
	if err != nil {
		log.Printf("[PAYOUT] Decision %s failed for payout %s: %v", target, payoutID, err)
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(NewPayoutResponse(payout))
}

// Decide applies an admin decision: PENDING -> APPROVED or PENDING ->
// REJECTED. A repeat of the same decision is a no-op so the admin source can
// retry blindly; anything else is an invalid transition.
func (s *PayoutService) Decide(payoutID, target string) (*models.Payout, error) {
	if target != models.PayoutApproved && target != models.PayoutRejected {
		return nil, ErrInvalidTransition
	}

	result, err := s.db.Exec(`
		UPDATE payouts
		SET status = $1, decided_at = $2
		WHERE id = $3 AND status = 'PENDING'`,
		target, time.Now(), payoutID)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	payout, err := s.fetchPayout(s.db, payoutID)
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		if payout.Status == target {
			return payout, nil // retried decision, no-op
		}
		return nil, ErrInvalidTransition
	}

	log.Printf("[PAYOUT] Payout %s -> %s", payoutID, target)
	return payout, nil
}

// ConfirmPaid handles the settlement confirmation
// @Summary Mark payout paid
// @Description Settle an approved payout: writes the single debit movement and flips the status. Idempotent on retry.
// @Tags payouts
// @Produce json
// @Security BearerAuth
// @Param payoutId path string true "Payout ID"
// @Success 200 {object} PayoutResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /payouts/{payoutId}/paid [post]
func (s *PayoutService) ConfirmPaid(w http.ResponseWriter, r *http.Request) {
	payoutID := chi.URLParam(r, "payoutId")

	var payout *models.Payout
	err := withConflictRetry(func() error {
		var opErr error
		payout, opErr = s.MarkPaid(payoutID)
		return opErr
	})
	if err != nil {
		log.Printf("[PAYOUT] Mark paid failed for payout %s: %v", payoutID, err)
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(NewPayoutResponse(payout))
}

// MarkPaid settles an APPROVED payout: exactly one debit movement plus the
// status flip, in one transaction. Calling it again on a PAID payout returns
// the payout unchanged and never writes a second debit.
func (s *PayoutService) MarkPaid(payoutID string) (*models.Payout, error) {
	// Read outside the transaction to learn the influencer, so locks can be
	// taken in the same order as every other writer: influencer row first.
	peek, err := s.fetchPayout(s.db, payoutID)
	if err != nil {
		return nil, err
	}
	if peek.Status == models.PayoutPaid {
		return peek, nil
	}
	if peek.Status != models.PayoutApproved {
		return nil, ErrInvalidTransition
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.ledger.LockInfluencer(tx, peek.InfluencerID); err != nil {
		return nil, err
	}

	payout, err := s.lockPayout(tx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status == models.PayoutPaid {
		return payout, nil
	}
	if payout.Status != models.PayoutApproved {
		return nil, ErrInvalidTransition
	}

	movement := &models.Movement{
		InfluencerID:  payout.InfluencerID,
		Kind:          models.MovementDebit,
		Amount:        payout.Amount,
		ReferenceType: models.ReferencePayout,
		ReferenceID:   payout.ID,
	}
	if err := s.ledger.AppendMovementTx(tx, movement); err != nil {
		return nil, err
	}

	now := time.Now()
	result, err := tx.Exec(`
		UPDATE payouts
		SET status = 'PAID', movement_id = $1, paid_at = $2
		WHERE id = $3 AND status = 'APPROVED'`,
		movement.ID, now, payout.ID)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	payout.Status = models.PayoutPaid
	payout.MovementID = &movement.ID
	payout.PaidAt = &now

	log.Printf("[PAYOUT] Payout %s settled: debit %d recorded as movement %s", payout.ID, payout.Amount, movement.ID)

	// Downstream notification happens after commit; the ledger fact stands
	// even if the queue push fails.
	if s.settlement != nil {
		if err := s.settlement.QueueSettled(payout); err != nil {
			log.Printf("[PAYOUT] Failed to queue payout %s for settlement export: %v", payout.ID, err)
		}
	}

	return payout, nil
}

// ListPayouts returns an influencer's payouts, optionally filtered by status.
func (s *PayoutService) ListPayouts(influencerID, status string) ([]models.Payout, error) {
	if err := s.ledger.influencerExists(influencerID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, influencer_id, amount, status, movement_id, created_at, decided_at, paid_at
		FROM payouts
		WHERE influencer_id = $1`
	args := []any{influencerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payouts := []models.Payout{}
	for rows.Next() {
		var p models.Payout
		if err := rows.Scan(&p.ID, &p.InfluencerID, &p.Amount, &p.Status, &p.MovementID,
			&p.CreatedAt, &p.DecidedAt, &p.PaidAt); err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// GetPayout returns one payout by id.
func (s *PayoutService) GetPayout(payoutID string) (*models.Payout, error) {
	return s.fetchPayout(s.db, payoutID)
}

func (s *PayoutService) fetchPayout(q rowQuerier, payoutID string) (*models.Payout, error) {
	return scanPayout(q.QueryRow(`
		SELECT id, influencer_id, amount, status, movement_id, created_at, decided_at, paid_at
		FROM payouts
		WHERE id = $1`, payoutID))
}

func (s *PayoutService) lockPayout(tx *sql.Tx, payoutID string) (*models.Payout, error) {
	return scanPayout(tx.QueryRow(`
		SELECT id, influencer_id, amount, status, movement_id, created_at, decided_at, paid_at
		FROM payouts
		WHERE id = $1
		FOR UPDATE`, payoutID))
}

func scanPayout(row *sql.Row) (*models.Payout, error) {
	var p models.Payout
	err := row.Scan(&p.ID, &p.InfluencerID, &p.Amount, &p.Status, &p.MovementID,
		&p.CreatedAt, &p.DecidedAt, &p.PaidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownPayout
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
