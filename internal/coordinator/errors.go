package coordinator

import (
	"errors"
	"fmt"

	inventoryservice "github.com/jcmexdev/quitq-checkout/internal/inventory-service"
)

// Business failures of a checkout. Errors detected before the first write
// (empty cart, stock shortfall, missing address) need no compensation; the
// others are only returned after the saga rolled back.
var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrNoShippingAddress   = errors.New("no active shipping address")
	ErrOrderCreationFailed = errors.New("order creation failed")
	ErrPaymentFailed       = errors.New("payment failed")
)

// classify maps the step a saga failed at to the error the caller sees.
// The returned error still wraps the *StepError so compensation failures
// stay visible to errors.As.
func classify(stepErr *StepError) error {
	switch stepErr.Target {
	case StateOrderCreated, StateItemsRecorded:
		return fmt.Errorf("%w: %w", ErrOrderCreationFailed, stepErr)
	case StatePaymentRecorded:
		return fmt.Errorf("%w: %w", ErrPaymentFailed, stepErr)
	case StateStockCommitted:
		var commitErr *inventoryservice.StockCommitFailedError
		if errors.As(stepErr, &commitErr) {
			return stepErr
		}
		return &inventoryservice.StockCommitFailedError{Err: stepErr}
	default:
		return stepErr
	}
}
