package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/lib/pq"

	"github.com/creatorpay/backend/internal/models"
)

// SaleService is the intake boundary. It turns a validated external sale fact
// into exactly one credit movement, no matter how many times the fact is
// delivered.
type SaleService struct {
	db        *sql.DB
	ledger    *LedgerService
	registry  RateResolver
	validator *ValidationHelper
}

func NewSaleService(db *sql.DB, ledger *LedgerService, registry RateResolver) *SaleService {
	return &SaleService{
		db:        db,
		ledger:    ledger,
		registry:  registry,
		validator: NewValidationHelper(),
	}
}

// SaleRequest is the shape the sale intake collaborator delivers.
type SaleRequest struct {
	SaleID       string    `json:"saleId" validate:"required,min=1,max=64"`
	InfluencerID string    `json:"influencerId" validate:"required,uuid4"`
	CodeID       string    `json:"codeId" validate:"required"`
	Amount       string    `json:"amount" validate:"required"`
	OccurredAt   time.Time `json:"occurredAt" validate:"required"`
}

// RecordSale handles sale intake
// @Summary Record a sale
// @Description Record a commission credit for a sale made with a discount code. Safe to retry: redelivery of a sale id is a no-op.
// @Tags sales
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sale body SaleRequest true "Sale fact"
// @Success 200 {object} object{success=bool,message=string,movement=MovementResponse} "Already recorded"
// @Success 201 {object} object{success=bool,message=string,movement=MovementResponse}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sales [post]
func (s *SaleService) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest

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

	var movement *models.Movement
	var duplicate bool
	err = withConflictRetry(func() error {
		var opErr error
		movement, duplicate, opErr = s.recordSale(req.SaleID, req.InfluencerID, req.CodeID, amount, req.OccurredAt)
		return opErr
	})
	if err != nil {
		log.Printf("[SALE] Failed to record sale %s: %v", req.SaleID, err)
		SendServiceError(w, err)
		return
	}

	status := http.StatusCreated
	message := "Sale recorded"
	if duplicate {
		status = http.StatusOK
		message = "Sale already recorded"
		log.Printf("[SALE] Duplicate delivery for sale %s, returning existing movement %s", req.SaleID, movement.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"message":  message,
		"movement": NewMovementResponse(movement),
	})
}

// recordSale is the exactly-once core. The sale row insert and the credit
// movement share one transaction with the influencer row locked, so two
// concurrent deliveries of the same sale id cannot both pass the existence
// check.
func (s *SaleService) recordSale(saleID, influencerID, codeID string, amount int64, occurredAt time.Time) (*models.Movement, bool, error) {
	// Fast idempotency path: already recorded on a previous delivery.
	if existing, err := s.ledger.MovementByReference(models.ReferenceSale, saleID); err == nil {
		return existing, true, nil
	} else if err != sql.ErrNoRows {
		return nil, false, err
	}

	resolution, err := s.registry.ResolveRate(codeID, occurredAt)
	if err != nil {
		return nil, false, err
	}
	if resolution.InfluencerID != influencerID {
		log.Printf("[SALE] Sale %s names influencer %s but code %s belongs to %s",
			saleID, influencerID, codeID, resolution.InfluencerID)
		return nil, false, ErrUnknownCode
	}

	commission, err := CalculateCommission(amount, resolution.RatePct)
	if err != nil {
		return nil, false, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if err := s.ledger.LockInfluencer(tx, influencerID); err != nil {
		return nil, false, err
	}

	// The sales primary key is the processed marker. A unique violation here
	// means a concurrent delivery won the race; fall through to the no-op path.
	_, err = tx.Exec(`
		INSERT INTO sales (sale_id, influencer_id, code_id, amount, rate_pct, commission, occurred_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		saleID, influencerID, codeID, amount, resolution.RatePct, commission, occurredAt, time.Now())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			tx.Rollback()
			return s.existingSaleMovement(saleID)
		}
		return nil, false, err
	}

	movement := &models.Movement{
		InfluencerID:  influencerID,
		Kind:          models.MovementCredit,
		Amount:        commission,
		RatePct:       resolution.RatePct,
		ReferenceType: models.ReferenceSale,
		ReferenceID:   saleID,
	}
	if err := s.ledger.AppendMovementTx(tx, movement); err != nil {
		if errors.Is(err, ErrConflict) {
			tx.Rollback()
			return s.existingSaleMovement(saleID)
		}
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	log.Printf("[SALE] Recorded sale %s: credit %d (rate %d%%) for influencer %s",
		saleID, commission, resolution.RatePct, influencerID)
	return movement, false, nil
}

func (s *SaleService) existingSaleMovement(saleID string) (*models.Movement, bool, error) {
	existing, err := s.ledger.MovementByReference(models.ReferenceSale, saleID)
	if err == sql.ErrNoRows {
		// The racing transaction has not committed yet. Retry the whole
		// operation; it will land on the fast path.
		return nil, false, ErrConflict
	}
	if err != nil {
		return nil, false, err
	}
	return existing, true, nil
}
