package checkout

import (
	"errors"
	"time"

	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
)

type Status string

const (
	StatusPending         Status = "pending"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusCancelled       Status = "cancelled"
	StatusExpired         Status = "expired"
	StatusConsumed        Status = "consumed"
)

// SessionTTL is the hard expiry window. No operation may extend it.
const SessionTTL = 5 * time.Minute

type Item struct {
	ProductID string
	Size      string
	Quantity  int
	UnitPrice int64
}

// Session is a time-boxed intent to purchase a validated set of items. It owns
// the stock reservation until an order is anchored to it or it terminates.
type Session struct {
	ID            string
	OwnerID       string
	GuestToken    string
	Items         []Item
	Subtotal      int64
	ShippingCost  int64
	Discount      int64
	Total         int64
	Status        Status
	StockReserved bool
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

func NewSession(id, ownerID, guestToken string, items []Item, now time.Time) (*Session, error) {
	if id == "" {
		return nil, errors.New("session id cannot be empty")
	}
	if ownerID == "" && guestToken == "" {
		return nil, errors.New("session requires an owner id or a guest token")
	}
	if len(items) == 0 {
		return nil, domainErrors.ErrNoItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, errors.New("item quantity must be positive")
		}
	}

	return &Session{
		ID:         id,
		OwnerID:    ownerID,
		GuestToken: guestToken,
		Items:      items,
		Status:     StatusPending,
		ExpiresAt:  now.Add(SessionTTL),
		CreatedAt:  now,
	}, nil
}

func (s *Session) SetTotals(subtotal, discount, shipping int64) {
	s.Subtotal = subtotal
	s.Discount = discount
	s.ShippingCost = shipping
	s.Total = subtotal - discount + shipping
}

// MarkReserved is called only after every item's reservation succeeded.
func (s *Session) MarkReserved() {
	s.StockReserved = true
	s.Status = StatusAwaitingPayment
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Session) Terminal() bool {
	switch s.Status {
	case StatusCancelled, StatusExpired, StatusConsumed:
		return true
	}
	return false
}

func (s *Session) Cancel() error {
	if s.Status == StatusConsumed {
		return domainErrors.ErrSessionConsumed
	}
	if s.Terminal() {
		return nil
	}
	s.Status = StatusCancelled
	s.StockReserved = false
	return nil
}

// Consume hands reservation ownership to an order. From this point session
// cancellation and expiry no longer touch stock.
func (s *Session) Consume() error {
	if s.Status == StatusConsumed {
		return nil
	}
	if s.Terminal() {
		return domainErrors.ErrSessionCancelled
	}
	s.Status = StatusConsumed
	return nil
}

// Buyer returns whichever identity the session carries.
func (s *Session) Buyer() string {
	if s.OwnerID != "" {
		return s.OwnerID
	}
	return s.GuestToken
}
