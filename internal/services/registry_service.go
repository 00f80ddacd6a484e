package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/creatorpay/backend/internal/models"
)

// RateResolution is what the sale recorder needs from the code registry: who
// earns the commission and at what rate.
type RateResolution struct {
	InfluencerID string `json:"influencer_id"`
	RatePct      int    `json:"commission_rate"`
}

// RateResolver is the registry boundary consumed by the sale recorder. The
// recorder never reads code rows itself.
type RateResolver interface {
	ResolveRate(codeID string, atTime time.Time) (*RateResolution, error)
}

// RegistryService backs the code registry: influencer identities and discount
// codes with their current commission rate. Rate edits here never touch
// movements already written; the applied rate is copied onto each credit.
type RegistryService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewRegistryService(db *sql.DB) *RegistryService {
	return &RegistryService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// ResolveRate returns the commission rate a code carries for a sale occurring
// at the given time. Codes created after the sale occurred do not resolve.
func (s *RegistryService) ResolveRate(codeID string, atTime time.Time) (*RateResolution, error) {
	var res RateResolution
	var createdAt time.Time
	err := s.db.QueryRow(`
		SELECT influencer_id, commission_rate, created_at
		FROM codes
		WHERE code_id = $1`, codeID).Scan(&res.InfluencerID, &res.RatePct, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownCode
	}
	if err != nil {
		return nil, err
	}
	if createdAt.After(atTime) {
		log.Printf("[REGISTRY] Code %s did not exist at %s", codeID, atTime.Format(time.RFC3339))
		return nil, ErrUnknownCode
	}
	return &res, nil
}

// CreateInfluencer registers a new influencer identity
// @Summary Register influencer
// @Description Create an influencer the ledger can be keyed by
// @Tags registry
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{name=string} true "Influencer"
// @Success 201 {object} models.Influencer
// @Failure 400 {object} ErrorResponse
// @Router /influencers [post]
func (s *RegistryService) CreateInfluencer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required,min=2,max=120"`
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

	influencer := models.Influencer{
		ID:        uuid.New().String(),
		Name:      req.Name,
		CreatedAt: time.Now(),
	}

	_, err := s.db.Exec(`INSERT INTO influencers (id, name, created_at) VALUES ($1, $2, $3)`,
		influencer.ID, influencer.Name, influencer.CreatedAt)
	if err != nil {
		log.Printf("[REGISTRY] Failed to create influencer: %v", err)
		SendErrorResponse(w, "Failed to create influencer", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[REGISTRY] Influencer created: %s (%s)", influencer.ID, influencer.Name)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(influencer)
}

// CreateCode attaches a discount code with its commission rate
// @Summary Attach discount code
// @Description Attach a discount code to an influencer; re-posting the same code updates its rate going forward
// @Tags registry
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{codeId=string,influencerId=string,commissionRate=int,landingUrl=string} true "Code"
// @Success 201 {object} models.DiscountCode
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /codes [post]
func (s *RegistryService) CreateCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CodeID       string `json:"codeId" validate:"required,alphanum,min=3,max=40"`
		InfluencerID string `json:"influencerId" validate:"required,uuid4"`
		RatePct      int    `json:"commissionRate" validate:"required,gte=1,lte=100"`
		LandingURL   string `json:"landingUrl" validate:"omitempty,url"`
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

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM influencers WHERE id = $1)`, req.InfluencerID).Scan(&exists); err != nil {
		SendErrorResponse(w, "Failed to create code", http.StatusInternalServerError, nil)
		return
	}
	if !exists {
		SendServiceError(w, ErrUnknownInfluencer)
		return
	}

	now := time.Now()
	code := models.DiscountCode{
		CodeID:       req.CodeID,
		InfluencerID: req.InfluencerID,
		RatePct:      req.RatePct,
		LandingURL:   req.LandingURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Upsert: the rate change applies to future sales only. Movements keep
	// the rate that was in force when they were written.
	_, err := s.db.Exec(`
		INSERT INTO codes (code_id, influencer_id, commission_rate, landing_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (code_id) DO UPDATE
		SET commission_rate = EXCLUDED.commission_rate,
		    landing_url = EXCLUDED.landing_url,
		    updated_at = EXCLUDED.updated_at`,
		code.CodeID, code.InfluencerID, code.RatePct, code.LandingURL, now)
	if err != nil {
		log.Printf("[REGISTRY] Failed to create code %s: %v", req.CodeID, err)
		SendErrorResponse(w, "Failed to create code", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[REGISTRY] Code %s attached to influencer %s at %d%%", code.CodeID, code.InfluencerID, code.RatePct)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(code)
}

// GetCode returns a code row for the share handler.
func (s *RegistryService) GetCode(codeID string) (*models.DiscountCode, error) {
	var code models.DiscountCode
	err := s.db.QueryRow(`
		SELECT code_id, influencer_id, commission_rate, landing_url, created_at, updated_at
		FROM codes
		WHERE code_id = $1`, codeID).Scan(
		&code.CodeID, &code.InfluencerID, &code.RatePct, &code.LandingURL, &code.CreatedAt, &code.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownCode
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}
