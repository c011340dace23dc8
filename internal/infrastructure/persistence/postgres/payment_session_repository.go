package postgres

import (
	"context"
	"database/sql"

	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/payment"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
)

type PaymentSessionRepository struct {
	q executor
}

func (r *PaymentSessionRepository) Create(ctx context.Context, session *payment.Session) error {
	query := `
		INSERT INTO payment_sessions (
			transaction_ref, checkout_session_id, order_id, amount, redirect_url, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	end := monitoring.TimeDBQuery("INSERT", "payment_sessions")
	defer end()

	_, err := r.q.ExecContext(ctx, query,
		session.TransactionRef, session.CheckoutSessionID, session.OrderID,
		session.Amount, session.RedirectURL, session.CreatedAt,
	)
	return err
}

func (r *PaymentSessionRepository) SetRedirectURL(ctx context.Context, transactionRef, redirectURL string) error {
	end := monitoring.TimeDBQuery("UPDATE", "payment_sessions")
	defer end()

	_, err := r.q.ExecContext(ctx,
		`UPDATE payment_sessions SET redirect_url = $2 WHERE transaction_ref = $1`,
		transactionRef, redirectURL,
	)
	return err
}

func (r *PaymentSessionRepository) GetByTransactionRef(ctx context.Context, transactionRef string) (*payment.Session, error) {
	query := `
		SELECT transaction_ref, checkout_session_id, order_id, amount, redirect_url, created_at
		FROM payment_sessions
		WHERE transaction_ref = $1
	`

	end := monitoring.TimeDBQuery("SELECT", "payment_sessions")
	defer end()

	var s payment.Session
	err := r.q.QueryRowContext(ctx, query, transactionRef).Scan(
		&s.TransactionRef, &s.CheckoutSessionID, &s.OrderID,
		&s.Amount, &s.RedirectURL, &s.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainErrors.ErrPaymentSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}
