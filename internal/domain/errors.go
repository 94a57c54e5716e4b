package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidAmount     = errors.New("Amount must be a positive number")
	ErrEmptySilo         = errors.New("Silo is empty")
	ErrInsufficientStock = errors.New("Insufficient stock in silo")
	ErrCapacityExceeded  = errors.New("Silo capacity exceeded")
	ErrPlanStale         = errors.New("Withdrawal plan is stale")
	ErrResourceBusy      = errors.New("Silo is locked by another operation")
	ErrSiloNotFound      = errors.New("Silo not found")
)

// LedgerError wraps a taxonomy sentinel with the context the caller needs
// to render an actionable message. Matchable with errors.Is against the
// wrapped sentinel.
type LedgerError struct {
	Err       error
	SiloID    uuid.UUID
	Requested float64
	Available float64
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s (silo %s: requested %.2f, available %.2f)",
		e.Err.Error(), e.SiloID, e.Requested, e.Available)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// NewLedgerError attaches silo context to a taxonomy sentinel.
func NewLedgerError(err error, siloID uuid.UUID, requested, available float64) *LedgerError {
	return &LedgerError{Err: err, SiloID: siloID, Requested: requested, Available: available}
}
