package order

import (
	"errors"
	"time"

	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

type Item struct {
	ProductID string
	Size      string
	Quantity  int
	UnitPrice int64
}

// Order anchors a payment to a set of items. A DRAFT order exists before the
// payment redirect is issued so a crash between "payment succeeded" and "order
// row exists" cannot lose the sale. IdempotencyKey is unique per checkout
// session and guards re-entrant draft creation.
type Order struct {
	ID                       string
	IdempotencyKey           string
	SessionID                string
	TransactionRef           string
	Status                   Status
	PaymentStatus            PaymentStatus
	Items                    []Item
	Total                    int64
	StockReserved            bool
	StockConfirmed           bool
	RequiresManualProcessing bool
	CreatedAt                time.Time
	ConfirmedAt              *time.Time
}

func NewDraft(id, idempotencyKey, sessionID, transactionRef string, items []Item, total int64, now time.Time) (*Order, error) {
	if id == "" {
		return nil, errors.New("order id cannot be empty")
	}
	if idempotencyKey == "" {
		return nil, errors.New("idempotency key cannot be empty")
	}
	if len(items) == 0 {
		return nil, domainErrors.ErrNoItems
	}

	return &Order{
		ID:             id,
		IdempotencyKey: idempotencyKey,
		SessionID:      sessionID,
		TransactionRef: transactionRef,
		Status:         StatusDraft,
		PaymentStatus:  PaymentPending,
		Items:          items,
		Total:          total,
		StockReserved:  true,
		CreatedAt:      now,
	}, nil
}

// NewEmergency builds the last-resort placeholder order: amount and
// transaction reference only, flagged for manual processing so the payment is
// never left unattributed.
func NewEmergency(id, transactionRef string, amount int64, now time.Time) *Order {
	return &Order{
		ID:                       id,
		IdempotencyKey:           "emergency-" + transactionRef,
		TransactionRef:           transactionRef,
		Status:                   StatusConfirmed,
		PaymentStatus:            PaymentSuccess,
		Total:                    amount,
		RequiresManualProcessing: true,
		CreatedAt:                now,
	}
}

// Confirm moves DRAFT to CONFIRMED. Confirming an already-CONFIRMED order is
// an idempotent no-op; confirming a CANCELLED order is an error.
func (o *Order) Confirm(now time.Time) error {
	switch o.Status {
	case StatusConfirmed:
		return nil
	case StatusCancelled:
		return domainErrors.ErrOrderCancelled
	}
	o.Status = StatusConfirmed
	o.PaymentStatus = PaymentSuccess
	o.StockConfirmed = true
	o.ConfirmedAt = &now
	return nil
}

func (o *Order) Cancel() error {
	if o.Status == StatusConfirmed {
		return errors.New("cannot cancel a confirmed order")
	}
	o.Status = StatusCancelled
	return nil
}
