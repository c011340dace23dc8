package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgconn"

	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/order"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
)

const uniqueViolation = "23505"

type OrderRepository struct {
	q executor
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (
			id, idempotency_key, session_id, transaction_ref, status, payment_status,
			items, total, stock_reserved, stock_confirmed, requires_manual_processing,
			created_at, confirmed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	end := monitoring.TimeDBQuery("INSERT", "orders")
	defer end()

	_, err = r.q.ExecContext(ctx, query,
		o.ID, o.IdempotencyKey, o.SessionID, o.TransactionRef,
		string(o.Status), string(o.PaymentStatus), items, o.Total,
		o.StockReserved, o.StockConfirmed, o.RequiresManualProcessing,
		o.CreatedAt, o.ConfirmedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domainErrors.ErrDuplicateOrder
		}
		return err
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getBy(ctx, "id = $1", id)
}

func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return r.getBy(ctx, "idempotency_key = $1", key)
}

func (r *OrderRepository) GetByTransactionRef(ctx context.Context, transactionRef string) (*order.Order, error) {
	return r.getBy(ctx, "transaction_ref = $1", transactionRef)
}

func (r *OrderRepository) GetBySessionID(ctx context.Context, sessionID string) (*order.Order, error) {
	return r.getBy(ctx, "session_id = $1", sessionID)
}

func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	query := `
		UPDATE orders
		SET status = $2, payment_status = $3, stock_reserved = $4,
		    stock_confirmed = $5, requires_manual_processing = $6, confirmed_at = $7
		WHERE id = $1
	`

	end := monitoring.TimeDBQuery("UPDATE", "orders")
	defer end()

	result, err := r.q.ExecContext(ctx, query,
		o.ID, string(o.Status), string(o.PaymentStatus),
		o.StockReserved, o.StockConfirmed, o.RequiresManualProcessing, o.ConfirmedAt,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domainErrors.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) getBy(ctx context.Context, predicate string, arg string) (*order.Order, error) {
	query := `
		SELECT id, idempotency_key, session_id, transaction_ref, status, payment_status,
		       items, total, stock_reserved, stock_confirmed, requires_manual_processing,
		       created_at, confirmed_at
		FROM orders
		WHERE ` + predicate

	end := monitoring.TimeDBQuery("SELECT", "orders")
	defer end()

	var (
		o             order.Order
		items         []byte
		status        string
		paymentStatus string
		confirmedAt   sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&o.ID, &o.IdempotencyKey, &o.SessionID, &o.TransactionRef,
		&status, &paymentStatus, &items, &o.Total,
		&o.StockReserved, &o.StockConfirmed, &o.RequiresManualProcessing,
		&o.CreatedAt, &confirmedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	if confirmedAt.Valid {
		o.ConfirmedAt = &confirmedAt.Time
	}
	return &o, nil
}
