package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenwear/storefront-service/internal/application/apptest"
	"github.com/lumenwear/storefront-service/internal/application/use_cases"
	"github.com/lumenwear/storefront-service/internal/domain/checkout"
	"github.com/lumenwear/storefront-service/internal/domain/order"
	"github.com/lumenwear/storefront-service/internal/domain/payment"
	"github.com/lumenwear/storefront-service/internal/pkg/backoff"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
)

func newRetryFixture(t *testing.T, store *apptest.Store, cache *apptest.Cache, clk *clock.MockClock) *RetryWorker {
	t.Helper()
	uow := apptest.NewUnitOfWork(store, true)
	log := testLogger()
	commit := use_cases.NewOrderCommitUseCase(uow, cache, clk, log)
	recovery := use_cases.NewReconciliationUseCase(uow, commit, clk, log, 100, 0)
	policy := backoff.NewPolicy(time.Second, 5*time.Minute, 5)
	webhooks := use_cases.NewWebhookUseCase(uow, cache, commit, recovery, policy, clk, log)
	return NewRetryWorker(webhooks, cache, clk, log, time.Second)
}

func seedFailedEvent(store *apptest.Store, transactionRef string) *payment.Event {
	n := payment.Notification{TransactionRef: transactionRef, Amount: 5000, State: payment.StateSuccess}
	payload, _ := json.Marshal(n)
	event := payment.NewEvent(n, payload, testStart.Add(-time.Minute))
	event.Status = payment.EventFailed
	event.RetryCount = 1
	store.PutEvent(event)
	return event
}

func TestDrainReplaysDueEvents(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	clk := clock.NewMockClock(testStart)

	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)

	items := []checkout.Item{{ProductID: "hoodie-01", Size: "M", Quantity: 2, UnitPrice: 2500}}
	session, err := checkout.NewSession("sess-1", "buyer-1", "", items, testStart)
	require.NoError(t, err)
	session.MarkReserved()
	store.PutSession(session)

	orderItems := []order.Item{{ProductID: "hoodie-01", Size: "M", Quantity: 2, UnitPrice: 2500}}
	draft, err := order.NewDraft("ord-1", "checkout-sess-1", "sess-1", "TXN-1", orderItems, 5000, testStart)
	require.NoError(t, err)
	store.PutOrder(draft)

	event := seedFailedEvent(store, "TXN-1")
	require.NoError(t, cache.EnqueueRetry(context.Background(), event.ID, testStart.Add(-time.Second)))

	worker := newRetryFixture(t, store, cache, clk)
	require.NoError(t, worker.Drain(context.Background()))

	assert.Equal(t, payment.EventProcessed, store.EventByID(event.ID).Status)
	assert.Equal(t, order.StatusConfirmed, store.OrderByID("ord-1").Status)

	depth, err := cache.RetryQueueDepth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestDrainLeavesFutureEventsQueued(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	clk := clock.NewMockClock(testStart)

	event := seedFailedEvent(store, "TXN-future")
	require.NoError(t, cache.EnqueueRetry(context.Background(), event.ID, testStart.Add(time.Minute)))

	worker := newRetryFixture(t, store, cache, clk)
	require.NoError(t, worker.Drain(context.Background()))

	// Not yet due: untouched.
	assert.Equal(t, payment.EventFailed, store.EventByID(event.ID).Status)
	depth, err := cache.RetryQueueDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	// Once the clock passes readyAt the event is replayed.
	clk.Advance(2 * time.Minute)
	require.NoError(t, worker.Drain(context.Background()))

	// No order exists for the ref, so the replay fails and reschedules.
	replayed := store.EventByID(event.ID)
	assert.Equal(t, payment.EventFailed, replayed.Status)
	assert.Equal(t, 2, replayed.RetryCount)
}
