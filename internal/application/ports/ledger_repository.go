package ports

import (
	"context"

	"github.com/lumenwear/storefront-service/internal/domain/stock"
)

// LedgerRepository mutates the per-size stock counters. Every mutation is a
// single conditional update; read-then-write is never allowed. A failed
// predicate returns *errors.StockError carrying the current availability.
type LedgerRepository interface {
	GetSizeLedger(ctx context.Context, productID, size string) (*stock.SizeLedger, error)
	Reserve(ctx context.Context, line stock.Line) error
	Release(ctx context.Context, line stock.Line) error
	Confirm(ctx context.Context, line stock.Line) error
}
