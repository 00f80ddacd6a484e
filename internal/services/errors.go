package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared across the ledger services. Handlers translate these
// to HTTP statuses with ErrorStatus; everything else maps to a 500.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidRate         = errors.New("commission rate must be between 1 and 100")
	ErrUnknownInfluencer   = errors.New("influencer not found")
	ErrUnknownCode         = errors.New("discount code not found")
	ErrUnknownPayout       = errors.New("payout not found")
	ErrInsufficientBalance = errors.New("insufficient spendable balance")
	ErrInvalidTransition   = errors.New("invalid payout transition")
	ErrConflict            = errors.New("concurrent update conflict, retry")
)

// ErrorStatus maps a service error to its HTTP status.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnknownInfluencer),
		errors.Is(err, ErrUnknownCode),
		errors.Is(err, ErrUnknownPayout):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidRate):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// maxConflictRetries bounds transparent retries of writes that lost an
// optimistic race. The operation is retried whole; partial state never leaks.
const maxConflictRetries = 3

func withConflictRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = op()
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxConflictRetries, err)
}
