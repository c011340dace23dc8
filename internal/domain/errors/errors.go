package errors

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrSizeNotFound    = errors.New("product size not found")

	ErrSessionNotFound  = errors.New("checkout session not found")
	ErrSessionExpired   = errors.New("checkout session expired, please retry checkout")
	ErrSessionCancelled = errors.New("checkout session cancelled")
	ErrSessionConsumed  = errors.New("checkout session already consumed by an order")
	ErrNoItems          = errors.New("no items in checkout")

	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderNotDraft    = errors.New("order is not in draft state")
	ErrOrderCancelled   = errors.New("order is cancelled")
	ErrDuplicateOrder   = errors.New("order already exists for idempotency key")
	ErrEventNotFound    = errors.New("payment event not found")
	ErrPaymentSessionNotFound = errors.New("payment session not found")
	ErrDuplicateEvent   = errors.New("payment event already processed")
	ErrEventInFlight    = errors.New("payment event is being processed")
	ErrInvalidSignature = errors.New("webhook signature verification failed")

	ErrTransactionFailed = errors.New("transaction failed")
	ErrLockUnavailable   = errors.New("distributed lock unavailable")
)

// StockError is returned when a conditional ledger update affects zero rows.
// Available carries the last-known available quantity so callers can tell the
// buyer how many units are actually left.
type StockError struct {
	ProductID string
	Size      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s size %s: requested %d, available %d",
		e.ProductID, e.Size, e.Requested, e.Available)
}

func NewStockError(productID, size string, requested, available int) *StockError {
	return &StockError{
		ProductID: productID,
		Size:      size,
		Requested: requested,
		Available: available,
	}
}

// AsStockError unwraps err into a *StockError if one is in the chain.
func AsStockError(err error) (*StockError, bool) {
	var se *StockError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d invalid fields", len(e.Fields))
}

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// GatewayError is a provider-side rejection or transport failure, already
// mapped to the decline taxonomy. Retryable tells the client whether retrying
// the same payment can possibly succeed.
type GatewayError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway error %s: %s", e.Code, e.Message)
}

// CriticalError marks a failure that exhausted all retries on a
// successful-payment event. It is never swallowed: the caller must alert and
// fall through to emergency order creation.
type CriticalError struct {
	EventID string
	Cause   error
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("critical failure processing event %s: %v", e.EventID, e.Cause)
}

func (e *CriticalError) Unwrap() error {
	return e.Cause
}
