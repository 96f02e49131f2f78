package service

import (
	"errors"
	"fmt"

	"bridal-order-service/internal/momo"
	"bridal-order-service/internal/store"
)

var (
	ErrNotFound           = errors.New("order: not found")
	ErrInvalidInput       = errors.New("order: invalid input")
	ErrInvalidTransition  = errors.New("order: invalid status transition")
	ErrNotReturnable      = fmt.Errorf("%w: only delivered orders can be returned", ErrInvalidTransition)
	ErrTransactionFailure = errors.New("order: transaction failed")

	ErrSignatureMismatch  = momo.ErrSignatureMismatch
	ErrAmountMismatch     = errors.New("payment: amount does not match order total")
	ErrDuplicateCallback  = errors.New("payment: callback already applied")
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
	ErrPaymentsDisabled   = errors.New("payment: gateway not configured")
)

// classifyTxError maps an error returned from inside a transaction onto the
// service taxonomy. Anything not already classified is an infrastructure fault.
func classifyTxError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrDuplicateCallback):
		return err
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
	}
}

// rejectionReason is the metrics label for a failed transition.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "transaction_failure"
	}
}
