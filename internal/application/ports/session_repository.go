package ports

import (
	"context"
	"time"

	"github.com/lumenwear/storefront-service/internal/domain/checkout"
)

type SessionRepository interface {
	Create(ctx context.Context, session *checkout.Session) error
	GetByID(ctx context.Context, id string) (*checkout.Session, error)
	Update(ctx context.Context, session *checkout.Session) error
	// FindExpiredReserved returns sessions past their expiry that still hold a
	// reservation, for the reaper sweep.
	FindExpiredReserved(ctx context.Context, now time.Time, limit int) ([]*checkout.Session, error)
}
