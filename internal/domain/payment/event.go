package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Gateway payment states as they appear in webhook bodies.
const (
	StateSuccess = "PAYMENT_SUCCESS"
	StateError   = "PAYMENT_ERROR"
	StatePending = "PAYMENT_PENDING"
)

type EventStatus string

const (
	EventReceived   EventStatus = "received"
	EventProcessing EventStatus = "processing"
	EventProcessed  EventStatus = "processed"
	EventFailed     EventStatus = "failed"
)

// Notification is the decoded webhook body.
type Notification struct {
	TransactionRef string `json:"transactionRef"`
	OrderRef       string `json:"orderRef"`
	Amount         int64  `json:"amount"`
	State          string `json:"state"`
	Event          string `json:"event"`
}

// EventID derives the idempotency key from immutable transaction facts.
// Duplicate deliveries of the same logical event hash to the same id no matter
// how many times the gateway retries.
func (n Notification) EventID() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", n.TransactionRef, n.OrderRef, n.Amount, n.State)))
	return hex.EncodeToString(sum[:])
}

func (n Notification) Success() bool {
	return n.State == StateSuccess
}

// Event is the persisted idempotency record for one logical notification.
// Transaction facts are denormalized out of the payload so reconciliation can
// query them without decoding JSON.
type Event struct {
	ID             string
	TransactionRef string
	OrderRef       string
	Amount         int64
	State          string
	Status         EventStatus
	Payload        []byte
	ReceivedAt     time.Time
	ClaimedAt      *time.Time
	ProcessedAt    *time.Time
	RetryCount     int
	LastError      string
}

func NewEvent(n Notification, payload []byte, now time.Time) *Event {
	return &Event{
		ID:             n.EventID(),
		TransactionRef: n.TransactionRef,
		OrderRef:       n.OrderRef,
		Amount:         n.Amount,
		State:          n.State,
		Status:         EventReceived,
		Payload:        payload,
		ReceivedAt:     now,
	}
}

func (e *Event) Notification() Notification {
	return Notification{
		TransactionRef: e.TransactionRef,
		OrderRef:       e.OrderRef,
		Amount:         e.Amount,
		State:          e.State,
	}
}

func (e *Event) Terminal() bool {
	return e.Status == EventProcessed || e.Status == EventFailed
}

// Stalled reports whether a processing claim is old enough to be treated as
// abandoned by a crashed worker.
func (e *Event) Stalled(now time.Time, threshold time.Duration) bool {
	if e.Status != EventProcessing || e.ClaimedAt == nil {
		return false
	}
	return now.Sub(*e.ClaimedAt) > threshold
}

// Session is the recorded snapshot of an outbound payment-session request,
// kept so reconciliation can rebuild an order when the draft is missing.
type Session struct {
	TransactionRef    string
	CheckoutSessionID string
	OrderID           string
	Amount            int64
	RedirectURL       string
	CreatedAt         time.Time
}
