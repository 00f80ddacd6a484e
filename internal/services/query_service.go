package services

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/creatorpay/backend/internal/models"
)

// QueryService is the read-only facade for dashboards and reporting. It never
// mutates anything; every figure comes straight from the movement and payout
// rows.
type QueryService struct {
	ledger  *LedgerService
	payouts *PayoutService
}

func NewQueryService(ledger *LedgerService, payouts *PayoutService) *QueryService {
	return &QueryService{
		ledger:  ledger,
		payouts: payouts,
	}
}

// GetBalance returns the derived balance summary
// @Summary Balance summary
// @Description Available, reserved and spendable balance, derived from the ledger
// @Tags ledger
// @Produce json
// @Security BearerAuth
// @Param influencerId path string true "Influencer ID"
// @Success 200 {object} models.Balance
// @Failure 404 {object} ErrorResponse
// @Router /influencers/{influencerId}/balance [get]
func (s *QueryService) GetBalance(w http.ResponseWriter, r *http.Request) {
	influencerID := chi.URLParam(r, "influencerId")

	balance, err := s.ledger.GetBalance(influencerID)
	if err != nil {
		log.Printf("[BALANCE] Balance query failed for influencer %s: %v", influencerID, err)
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"influencerId": balance.InfluencerID,
		"available":    FormatAmount(balance.Available),
		"reserved":     FormatAmount(balance.Reserved),
		"spendable":    FormatAmount(balance.Spendable),
	})
}

// ListMovements returns the paginated movement history
// @Summary Movement history
// @Description Immutable ledger entries, newest first
// @Tags ledger
// @Produce json
// @Security BearerAuth
// @Param influencerId path string true "Influencer ID"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Offset"
// @Success 200 {object} object{movements=[]MovementResponse,count=int}
// @Failure 404 {object} ErrorResponse
// @Router /influencers/{influencerId}/movements [get]
func (s *QueryService) ListMovements(w http.ResponseWriter, r *http.Request) {
	influencerID := chi.URLParam(r, "influencerId")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	movements, err := s.ledger.ListMovements(influencerID, limit, offset)
	if err != nil {
		log.Printf("[LEDGER] Movement query failed for influencer %s: %v", influencerID, err)
		SendServiceError(w, err)
		return
	}

	views := make([]MovementResponse, 0, len(movements))
	for i := range movements {
		views = append(views, NewMovementResponse(&movements[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"movements": views,
		"count":     len(views),
		"limit":     limit,
		"offset":    offset,
	})
}

// ListPayouts returns the influencer's payout requests
// @Summary Payout list
// @Description Payout requests with status and transition timestamps
// @Tags ledger
// @Produce json
// @Security BearerAuth
// @Param influencerId path string true "Influencer ID"
// @Param status query string false "Filter by status (PENDING, APPROVED, REJECTED, PAID)"
// @Success 200 {object} object{payouts=[]PayoutResponse,count=int}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /influencers/{influencerId}/payouts [get]
func (s *QueryService) ListPayouts(w http.ResponseWriter, r *http.Request) {
	influencerID := chi.URLParam(r, "influencerId")

	status := r.URL.Query().Get("status")
	switch status {
	case "", models.PayoutPending, models.PayoutApproved, models.PayoutRejected, models.PayoutPaid:
	default:
		SendErrorResponse(w, "Unknown payout status filter", http.StatusBadRequest, nil)
		return
	}

	payouts, err := s.payouts.ListPayouts(influencerID, status)
	if err != nil {
		log.Printf("[LEDGER] Payout query failed for influencer %s: %v", influencerID, err)
		SendServiceError(w, err)
		return
	}

	views := make([]PayoutResponse, 0, len(payouts))
	for i := range payouts {
		views = append(views, NewPayoutResponse(&payouts[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"payouts": views,
		"count":   len(views),
	})
}

// Reconcile runs the balance consistency check
// @Summary Reconcile balance
// @Description Recompute the balance two independent ways and report divergence
// @Tags ledger
// @Produce json
// @Security BearerAuth
// @Param influencerId path string true "Influencer ID"
// @Success 200 {object} object{influencer_id=string,available=string,credits=string,debits=string,movements=int,consistent=bool}
// @Failure 404 {object} ErrorResponse
// @Router /influencers/{influencerId}/reconcile [get]
func (s *QueryService) Reconcile(w http.ResponseWriter, r *http.Request) {
	influencerID := chi.URLParam(r, "influencerId")

	report, err := s.ledger.Reconcile(influencerID)
	if err != nil {
		log.Printf("[BALANCE] Reconciliation failed for influencer %s: %v", influencerID, err)
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"influencer_id": report.InfluencerID,
		"available":     FormatAmount(report.Available),
		"credits":       FormatAmount(report.Credits),
		"debits":        FormatAmount(report.Debits),
		"movements":     report.Movements,
		"consistent":    report.Consistent,
	})
}
