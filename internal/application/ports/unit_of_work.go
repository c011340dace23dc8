package ports

import "context"

// RepositorySet is the set of repositories bound to one unit of work.
type RepositorySet interface {
	Ledger() LedgerRepository
	Sessions() SessionRepository
	Orders() OrderRepository
	Events() EventRepository
	PaymentSessions() PaymentSessionRepository
}

// UnitOfWork runs a function against a repository set. Business logic is
// written once against this interface; the backing strategy is picked at
// startup. The transactional strategy rolls every statement back when fn
// errors; the sequential strategy applies statements as they execute and
// accepts a narrower window of inconsistency.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ctx context.Context, repos RepositorySet) error) error
	// Transactional reports whether Execute provides all-or-nothing semantics.
	Transactional() bool
}
