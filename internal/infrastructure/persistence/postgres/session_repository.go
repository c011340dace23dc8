package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lumenwear/storefront-service/internal/domain/checkout"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
)

type SessionRepository struct {
	q executor
}

func (r *SessionRepository) Create(ctx context.Context, session *checkout.Session) error {
	items, err := json.Marshal(session.Items)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO checkout_sessions (
			id, owner_id, guest_token, items, subtotal, shipping_cost, discount,
			total, status, stock_reserved, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	end := monitoring.TimeDBQuery("INSERT", "checkout_sessions")
	defer end()

	_, err = r.q.ExecContext(ctx, query,
		session.ID, session.OwnerID, session.GuestToken, items,
		session.Subtotal, session.ShippingCost, session.Discount, session.Total,
		string(session.Status), session.StockReserved, session.ExpiresAt, session.CreatedAt,
	)
	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*checkout.Session, error) {
	query := `
		SELECT id, owner_id, guest_token, items, subtotal, shipping_cost, discount,
		       total, status, stock_reserved, expires_at, created_at
		FROM checkout_sessions
		WHERE id = $1
	`

	end := monitoring.TimeDBQuery("SELECT", "checkout_sessions")
	defer end()

	return scanSession(r.q.QueryRowContext(ctx, query, id))
}

func (r *SessionRepository) Update(ctx context.Context, session *checkout.Session) error {
	items, err := json.Marshal(session.Items)
	if err != nil {
		return err
	}

	query := `
		UPDATE checkout_sessions
		SET items = $2, subtotal = $3, shipping_cost = $4, discount = $5,
		    total = $6, status = $7, stock_reserved = $8
		WHERE id = $1
	`

	end := monitoring.TimeDBQuery("UPDATE", "checkout_sessions")
	defer end()

	result, err := r.q.ExecContext(ctx, query,
		session.ID, items, session.Subtotal, session.ShippingCost, session.Discount,
		session.Total, string(session.Status), session.StockReserved,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domainErrors.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) FindExpiredReserved(ctx context.Context, now time.Time, limit int) ([]*checkout.Session, error) {
	query := `
		SELECT id, owner_id, guest_token, items, subtotal, shipping_cost, discount,
		       total, status, stock_reserved, expires_at, created_at
		FROM checkout_sessions
		WHERE stock_reserved = TRUE AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`

	end := monitoring.TimeDBQuery("SELECT", "checkout_sessions")
	defer end()

	rows, err := r.q.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*checkout.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*checkout.Session, error) {
	var (
		s      checkout.Session
		items  []byte
		status string
	)
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.GuestToken, &items, &s.Subtotal, &s.ShippingCost,
		&s.Discount, &s.Total, &status, &s.StockReserved, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.ErrSessionNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(items, &s.Items); err != nil {
		return nil, err
	}
	s.Status = checkout.Status(status)
	return &s, nil
}
