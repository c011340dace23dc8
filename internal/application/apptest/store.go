// Package apptest provides in-memory implementations of the application
// ports for use-case tests. The fakes honor the same contracts as the real
// repositories: conditional ledger updates, idempotency-key uniqueness and
// event claim semantics.
package apptest

import (
	"context"
	"sync"
	"time"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	"github.com/lumenwear/storefront-service/internal/domain/checkout"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/order"
	"github.com/lumenwear/storefront-service/internal/domain/payment"
	"github.com/lumenwear/storefront-service/internal/domain/stock"
)

type sizeKey struct {
	productID string
	size      string
}

// Store holds every repository's state behind one mutex. It implements
// ports.RepositorySet directly, so the unit of work can hand it to business
// code unchanged.
type Store struct {
	mu sync.Mutex

	ledgers         map[sizeKey]*stock.SizeLedger
	sessions        map[string]*checkout.Session
	orders          map[string]*order.Order
	events          map[string]*payment.Event
	paymentSessions map[string]*payment.Session

	// ReserveErr, ReleaseErr and ConfirmErr force the next matching ledger
	// call to fail, for exercising abort paths.
	ReserveErr error
	ReleaseErr error
	ConfirmErr error
}

func NewStore() *Store {
	return &Store{
		ledgers:         make(map[sizeKey]*stock.SizeLedger),
		sessions:        make(map[string]*checkout.Session),
		orders:          make(map[string]*order.Order),
		events:          make(map[string]*payment.Event),
		paymentSessions: make(map[string]*payment.Session),
	}
}

func (s *Store) Ledger() ports.LedgerRepository                  { return (*ledgerRepo)(s) }
func (s *Store) Sessions() ports.SessionRepository               { return (*sessionRepo)(s) }
func (s *Store) Orders() ports.OrderRepository                   { return (*orderRepo)(s) }
func (s *Store) Events() ports.EventRepository                   { return (*eventRepo)(s) }
func (s *Store) PaymentSessions() ports.PaymentSessionRepository { return (*paymentSessionRepo)(s) }

// Seeding and inspection helpers.

func (s *Store) SeedLedger(productID, size string, stockQty, reserved int, unitPrice int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[sizeKey{productID, size}] = &stock.SizeLedger{
		ProductID: productID,
		Size:      size,
		Stock:     stockQty,
		Reserved:  reserved,
		UnitPrice: unitPrice,
	}
}

func (s *Store) LedgerState(productID, size string) (stockQty, reserved int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.ledgers[sizeKey{productID, size}]
	if l == nil {
		return 0, 0
	}
	return l.Stock, l.Reserved
}

func (s *Store) PutSession(session *checkout.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
}

func (s *Store) SessionByID(id string) *checkout.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.sessions[id]; ok {
		copied := *v
		return &copied
	}
	return nil
}

func (s *Store) PutOrder(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *o
	s.orders[o.ID] = &copied
}

func (s *Store) OrderByID(id string) *order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.orders[id]; ok {
		copied := *v
		return &copied
	}
	return nil
}

func (s *Store) OrderByIdempotencyKey(key string) *order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.IdempotencyKey == key {
			copied := *o
			return &copied
		}
	}
	return nil
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) PutEvent(e *payment.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *e
	s.events[e.ID] = &copied
}

func (s *Store) EventByID(id string) *payment.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.events[id]; ok {
		copied := *v
		return &copied
	}
	return nil
}

func (s *Store) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *Store) PutPaymentSession(ps *payment.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *ps
	s.paymentSessions[ps.TransactionRef] = &copied
}

func (s *Store) PaymentSessionByTransactionRef(transactionRef string) *payment.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.paymentSessions[transactionRef]; ok {
		copied := *v
		return &copied
	}
	return nil
}

// UnitOfWork runs functions directly against the store. The fake has no
// rollback: tests that exercise abort paths assert on the observable
// contract (order left DRAFT, error surfaced), not on statement atomicity.
type UnitOfWork struct {
	store         *Store
	transactional bool
}

func NewUnitOfWork(store *Store, transactional bool) *UnitOfWork {
	return &UnitOfWork{store: store, transactional: transactional}
}

func (u *UnitOfWork) Execute(ctx context.Context, fn func(ctx context.Context, repos ports.RepositorySet) error) error {
	return fn(ctx, u.store)
}

func (u *UnitOfWork) Transactional() bool {
	return u.transactional
}

type ledgerRepo Store

func (r *ledgerRepo) GetSizeLedger(ctx context.Context, productID, size string) (*stock.SizeLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[sizeKey{productID, size}]
	if !ok {
		return nil, domainErrors.ErrSizeNotFound
	}
	copied := *l
	return &copied, nil
}

func (r *ledgerRepo) Reserve(ctx context.Context, line stock.Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ReserveErr != nil {
		return r.ReserveErr
	}
	l, ok := r.ledgers[sizeKey{line.ProductID, line.Size}]
	if !ok {
		return domainErrors.ErrSizeNotFound
	}
	if l.Available() < line.Quantity {
		return domainErrors.NewStockError(line.ProductID, line.Size, line.Quantity, l.Available())
	}
	l.Reserved += line.Quantity
	return nil
}

func (r *ledgerRepo) Release(ctx context.Context, line stock.Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ReleaseErr != nil {
		return r.ReleaseErr
	}
	l, ok := r.ledgers[sizeKey{line.ProductID, line.Size}]
	if !ok {
		return domainErrors.ErrSizeNotFound
	}
	if l.Reserved < line.Quantity {
		return domainErrors.NewStockError(line.ProductID, line.Size, line.Quantity, l.Available())
	}
	l.Reserved -= line.Quantity
	return nil
}

func (r *ledgerRepo) Confirm(ctx context.Context, line stock.Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ConfirmErr != nil {
		return r.ConfirmErr
	}
	l, ok := r.ledgers[sizeKey{line.ProductID, line.Size}]
	if !ok {
		return domainErrors.ErrSizeNotFound
	}
	if l.Stock < line.Quantity || l.Reserved < line.Quantity {
		return domainErrors.NewStockError(line.ProductID, line.Size, line.Quantity, l.Available())
	}
	l.Stock -= line.Quantity
	l.Reserved -= line.Quantity
	return nil
}

type sessionRepo Store

func (r *sessionRepo) Create(ctx context.Context, session *checkout.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*checkout.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, domainErrors.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *sessionRepo) Update(ctx context.Context, session *checkout.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return domainErrors.ErrSessionNotFound
	}
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *sessionRepo) FindExpiredReserved(ctx context.Context, now time.Time, limit int) ([]*checkout.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*checkout.Session
	for _, session := range r.sessions {
		if len(out) >= limit {
			break
		}
		if session.StockReserved && session.ExpiresAt.Before(now) {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

type orderRepo Store

func (r *orderRepo) Create(ctx context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orders {
		if existing.IdempotencyKey == o.IdempotencyKey {
			return domainErrors.ErrDuplicateOrder
		}
	}
	copied := *o
	r.orders[o.ID] = &copied
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *orderRepo) GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.IdempotencyKey == key {
			copied := *o
			return &copied, nil
		}
	}
	return nil, domainErrors.ErrOrderNotFound
}

func (r *orderRepo) GetByTransactionRef(ctx context.Context, transactionRef string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.TransactionRef != "" && o.TransactionRef == transactionRef {
			copied := *o
			return &copied, nil
		}
	}
	return nil, domainErrors.ErrOrderNotFound
}

func (r *orderRepo) GetBySessionID(ctx context.Context, sessionID string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.SessionID != "" && o.SessionID == sessionID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, domainErrors.ErrOrderNotFound
}

func (r *orderRepo) Update(ctx context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; !ok {
		return domainErrors.ErrOrderNotFound
	}
	copied := *o
	r.orders[o.ID] = &copied
	return nil
}

type eventRepo Store

func (r *eventRepo) InsertIfAbsent(ctx context.Context, event *payment.Event) (bool, *payment.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.events[event.ID]; ok {
		copied := *existing
		return false, &copied, nil
	}
	copied := *event
	r.events[event.ID] = &copied
	return true, nil, nil
}

func (r *eventRepo) ClaimForProcessing(ctx context.Context, eventID string, now time.Time, stallThreshold time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return false, nil
	}
	claimable := event.Status == payment.EventReceived || event.Status == payment.EventFailed ||
		(event.Status == payment.EventProcessing && event.ClaimedAt != nil && event.ClaimedAt.Before(now.Add(-stallThreshold)))
	if !claimable {
		return false, nil
	}
	event.Status = payment.EventProcessing
	claimedAt := now
	event.ClaimedAt = &claimedAt
	return true, nil
}

func (r *eventRepo) MarkProcessed(ctx context.Context, eventID string, processedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return domainErrors.ErrEventNotFound
	}
	event.Status = payment.EventProcessed
	event.ProcessedAt = &processedAt
	return nil
}

func (r *eventRepo) MarkFailed(ctx context.Context, eventID string, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return domainErrors.ErrEventNotFound
	}
	event.Status = payment.EventFailed
	event.RetryCount++
	event.LastError = lastError
	return nil
}

func (r *eventRepo) GetByID(ctx context.Context, eventID string) (*payment.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return nil, domainErrors.ErrEventNotFound
	}
	copied := *event
	return &copied, nil
}

func (r *eventRepo) FindSuccessWithoutOrder(ctx context.Context, limit int) ([]*payment.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*payment.Event
	for _, event := range r.events {
		if len(out) >= limit {
			break
		}
		if event.State != payment.StateSuccess {
			continue
		}
		confirmed := false
		for _, o := range r.orders {
			if o.TransactionRef == event.TransactionRef && o.Status == order.StatusConfirmed {
				confirmed = true
				break
			}
		}
		if !confirmed {
			copied := *event
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *eventRepo) ListDeadLetter(ctx context.Context, minRetries, limit int) ([]*payment.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*payment.Event
	for _, event := range r.events {
		if len(out) >= limit {
			break
		}
		if event.Status == payment.EventFailed && event.RetryCount >= minRetries {
			copied := *event
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *eventRepo) Stats(ctx context.Context) (ports.EventStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats ports.EventStats
	for _, event := range r.events {
		stats.Total++
		switch event.Status {
		case payment.EventProcessed:
			stats.Processed++
		case payment.EventFailed:
			stats.Failed++
		case payment.EventProcessing:
			stats.Processing++
		}
	}
	return stats, nil
}

func (r *eventRepo) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int64
	for id, event := range r.events {
		if event.Terminal() && event.ReceivedAt.Before(cutoff) {
			delete(r.events, id)
			purged++
		}
	}
	return purged, nil
}

type paymentSessionRepo Store

func (r *paymentSessionRepo) Create(ctx context.Context, session *payment.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.paymentSessions[session.TransactionRef] = &copied
	return nil
}

func (r *paymentSessionRepo) SetRedirectURL(ctx context.Context, transactionRef, redirectURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.paymentSessions[transactionRef]
	if !ok {
		return domainErrors.ErrPaymentSessionNotFound
	}
	session.RedirectURL = redirectURL
	return nil
}

func (r *paymentSessionRepo) GetByTransactionRef(ctx context.Context, transactionRef string) (*payment.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.paymentSessions[transactionRef]
	if !ok {
		return nil, domainErrors.ErrPaymentSessionNotFound
	}
	copied := *session
	return &copied, nil
}
