package postgres

import (
	"context"
	"database/sql"

	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/stock"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
)

// LedgerRepository mutates per-size counters exclusively through conditional
// updates. The datastore linearizes concurrent mutations on the same
// (product_id, size) row: exactly one of two racing reservations for the last
// unit succeeds, the other observes zero rows affected.
type LedgerRepository struct {
	q executor
}

func (r *LedgerRepository) GetSizeLedger(ctx context.Context, productID, size string) (*stock.SizeLedger, error) {
	query := `
		SELECT product_id, size, stock, reserved, unit_price
		FROM product_sizes
		WHERE product_id = $1 AND size = $2
	`

	end := monitoring.TimeDBQuery("SELECT", "product_sizes")
	defer end()

	var l stock.SizeLedger
	err := r.q.QueryRowContext(ctx, query, productID, size).Scan(
		&l.ProductID, &l.Size, &l.Stock, &l.Reserved, &l.UnitPrice,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.ErrSizeNotFound
		}
		return nil, err
	}

	return &l, nil
}

// Reserve earmarks qty units: increment reserved only while
// stock - reserved >= qty holds.
func (r *LedgerRepository) Reserve(ctx context.Context, line stock.Line) error {
	query := `
		UPDATE product_sizes
		SET reserved = reserved + $3
		WHERE product_id = $1 AND size = $2 AND stock - reserved >= $3
	`
	return r.conditionalUpdate(ctx, query, line)
}

// Release hands qty earmarked units back.
func (r *LedgerRepository) Release(ctx context.Context, line stock.Line) error {
	query := `
		UPDATE product_sizes
		SET reserved = reserved - $3
		WHERE product_id = $1 AND size = $2 AND reserved >= $3
	`
	return r.conditionalUpdate(ctx, query, line)
}

// Confirm removes qty units permanently, decrementing stock and reserved
// together. This is the only operation that actually takes inventory out.
func (r *LedgerRepository) Confirm(ctx context.Context, line stock.Line) error {
	query := `
		UPDATE product_sizes
		SET stock = stock - $3, reserved = reserved - $3
		WHERE product_id = $1 AND size = $2 AND stock >= $3 AND reserved >= $3
	`
	return r.conditionalUpdate(ctx, query, line)
}

func (r *LedgerRepository) conditionalUpdate(ctx context.Context, query string, line stock.Line) error {
	end := monitoring.TimeDBQuery("UPDATE", "product_sizes")
	defer end()

	result, err := r.q.ExecContext(ctx, query, line.ProductID, line.Size, line.Quantity)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		monitoring.ReservationConflictTotal.Inc()
		return r.insufficientStock(ctx, line)
	}
	return nil
}

// insufficientStock re-reads availability so the error can tell the buyer how
// many units are actually left.
func (r *LedgerRepository) insufficientStock(ctx context.Context, line stock.Line) error {
	var available int
	err := r.q.QueryRowContext(ctx,
		`SELECT stock - reserved FROM product_sizes WHERE product_id = $1 AND size = $2`,
		line.ProductID, line.Size,
	).Scan(&available)
	if err != nil {
		if err == sql.ErrNoRows {
			return domainErrors.ErrSizeNotFound
		}
		return err
	}
	return domainErrors.NewStockError(line.ProductID, line.Size, line.Quantity, available)
}
