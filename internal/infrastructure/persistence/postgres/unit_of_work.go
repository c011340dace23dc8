package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
)

// executor is the common surface of *sql.DB and *sql.Tx; repositories are
// written once against it and bound to either by the unit of work.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type repositorySet struct {
	ledger          *LedgerRepository
	sessions        *SessionRepository
	orders          *OrderRepository
	events          *EventRepository
	paymentSessions *PaymentSessionRepository
}

func newRepositorySet(q executor) *repositorySet {
	return &repositorySet{
		ledger:          &LedgerRepository{q: q},
		sessions:        &SessionRepository{q: q},
		orders:          &OrderRepository{q: q},
		events:          &EventRepository{q: q},
		paymentSessions: &PaymentSessionRepository{q: q},
	}
}

func (r *repositorySet) Ledger() ports.LedgerRepository                   { return r.ledger }
func (r *repositorySet) Sessions() ports.SessionRepository                { return r.sessions }
func (r *repositorySet) Orders() ports.OrderRepository                    { return r.orders }
func (r *repositorySet) Events() ports.EventRepository                    { return r.events }
func (r *repositorySet) PaymentSessions() ports.PaymentSessionRepository  { return r.paymentSessions }

// TxUnitOfWork backs Execute with a real multi-statement transaction.
type TxUnitOfWork struct {
	db *sql.DB
}

func (u *TxUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, repos ports.RepositorySet) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrTransactionFailed, err)
	}

	if err := fn(ctx, newRepositorySet(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrTransactionFailed, err)
	}
	return nil
}

func (u *TxUnitOfWork) Transactional() bool { return true }

// SequentialUnitOfWork applies statements as they execute, for deployments
// whose store cannot provide multi-statement atomicity. A failing fn leaves
// earlier statements applied; callers log this path distinctly.
type SequentialUnitOfWork struct {
	db *sql.DB
}

func (u *SequentialUnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, repos ports.RepositorySet) error) error {
	return fn(ctx, newRepositorySet(u.db))
}

func (u *SequentialUnitOfWork) Transactional() bool { return false }

// NewUnitOfWork picks the strategy once at startup based on store capability.
func NewUnitOfWork(conn *Connection, transactional bool) ports.UnitOfWork {
	if transactional {
		return &TxUnitOfWork{db: conn.GetDB()}
	}
	return &SequentialUnitOfWork{db: conn.GetDB()}
}
