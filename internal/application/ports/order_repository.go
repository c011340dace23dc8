package ports

import (
	"context"

	"github.com/lumenwear/storefront-service/internal/domain/order"
)

type OrderRepository interface {
	// Create fails with errors.ErrDuplicateOrder when the idempotency key is
	// already taken.
	Create(ctx context.Context, o *order.Order) error
	GetByID(ctx context.Context, id string) (*order.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error)
	GetByTransactionRef(ctx context.Context, transactionRef string) (*order.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*order.Order, error)
	Update(ctx context.Context, o *order.Order) error
}
