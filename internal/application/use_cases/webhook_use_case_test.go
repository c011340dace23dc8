package use_cases_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenwear/storefront-service/internal/application/apptest"
	"github.com/lumenwear/storefront-service/internal/application/use_cases"
	"github.com/lumenwear/storefront-service/internal/domain/order"
	"github.com/lumenwear/storefront-service/internal/domain/payment"
	"github.com/lumenwear/storefront-service/internal/pkg/backoff"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
)

func newWebhookFixture(store *apptest.Store, cache *apptest.Cache, clk *clock.MockClock) *use_cases.WebhookUseCase {
	uow := apptest.NewUnitOfWork(store, true)
	log := testLogger()
	commit := use_cases.NewOrderCommitUseCase(uow, cache, clk, log)
	recovery := use_cases.NewReconciliationUseCase(uow, commit, clk, log, 100, 0)
	policy := backoff.NewPolicy(time.Second, 5*time.Minute, 5)
	return use_cases.NewWebhookUseCase(uow, cache, commit, recovery, policy, clk, log)
}

func successNotification(transactionRef string, amount int64) (payment.Notification, []byte) {
	n := payment.Notification{
		TransactionRef: transactionRef,
		OrderRef:       "sess-1",
		Amount:         amount,
		State:          payment.StateSuccess,
	}
	payload, _ := json.Marshal(n)
	return n, payload
}

func TestHandleNotificationConfirmsOrder(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	clk := clock.NewMockClock(testStart)

	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedAwaitingSession(store, "sess-1", 2)
	seedDraftOrder(store, "ord-1", "sess-1", "TXN-1", 2)

	uc := newWebhookFixture(store, cache, clk)
	n, payload := successNotification("TXN-1", 5000)

	require.NoError(t, uc.HandleNotification(context.Background(), n, payload))

	event := store.EventByID(n.EventID())
	require.NotNil(t, event)
	assert.Equal(t, payment.EventProcessed, event.Status)

	assert.Equal(t, order.StatusConfirmed, store.OrderByID("ord-1").Status)
	stockQty, reserved := store.LedgerState("hoodie-01", "M")
	assert.Equal(t, 8, stockQty)
	assert.Equal(t, 0, reserved)

	seen, err := cache.ProcessedEventSeen(context.Background(), n.EventID())
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestHandleNotificationDuplicateDelivery(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	clk := clock.NewMockClock(testStart)

	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedAwaitingSession(store, "sess-1", 2)
	seedDraftOrder(store, "ord-1", "sess-1", "TXN-1", 2)

	uc := newWebhookFixture(store, cache, clk)
	n, payload := successNotification("TXN-1", 5000)

	require.NoError(t, uc.HandleNotification(context.Background(), n, payload))
	require.NoError(t, uc.HandleNotification(context.Background(), n, payload))
	require.NoError(t, uc.HandleNotification(context.Background(), n, payload))

	// One event, one deduction, no matter how many deliveries.
	assert.Equal(t, 1, store.EventCount())
	stockQty, reserved := store.LedgerState("hoodie-01", "M")
	assert.Equal(t, 8, stockQty)
	assert.Equal(t, 0, reserved)
}

func TestHandleNotificationInFlightDuplicateIsNoOp(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	clk := clock.NewMockClock(testStart)

	n, payload := successNotification("TXN-1", 5000)
	event := payment.NewEvent(n, payload, testStart)
	event.Status = payment.EventProcessing
	claimedAt := testStart.Add(-2 * time.Second)
	event.ClaimedAt = &claimedAt
	store.PutEvent(event)

	uc := newWebhookFixture(store, cache, clk)
	require.NoError(t, uc.HandleNotification(context.Background(), n, payload))

	// The claim is fresh; the duplicate must not steal it.
	after := store.EventByID(n.EventID())
	assert.Equal(t, payment.EventProcessing, after.Status)
	assert.Equal(t, claimedAt, *after.ClaimedAt)
}

func TestHandleNotificationReclaimsStalledEvent(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	clk := clock.NewMockClock(testStart)

	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedAwaitingSession(store, "sess-1", 2)
	seedDraftOrder(store, "ord-1", "sess-1", "TXN-1", 2)

	n, payload := successNotification("TXN-1", 5000)
	event := payment.NewEvent(n, payload, testStart.Add(-time.Minute))
	event.Status = payment.EventProcessing
	claimedAt := testStart.Add(-time.Minute)
	event.ClaimedAt = &claimedAt
	store.PutEvent(event)

	uc := newWebhookFixture(store, cache, clk)
	require.NoError(t, uc.HandleNotification(context.Background(), n, payload))

	assert.Equal(t, payment.EventProcessed, store.EventByID(n.EventID()).Status)
	assert.Equal(t, order.StatusConfirmed, store.OrderByID("ord-1").Status)
}

func TestHandleNotificationFailureSchedulesRetry(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	clk := clock.NewMockClock(testStart)

	// No draft order exists for the ref, so processing fails.
	uc := newWebhookFixture(store, cache, clk)
	n, payload := successNotification("TXN-lost", 5000)

	require.NoError(t, uc.HandleNotification(context.Background(), n, payload))

	event := store.EventByID(n.EventID())
	assert.Equal(t, payment.EventFailed, event.Status)
	assert.Equal(t, 1, event.RetryCount)
	assert.NotEmpty(t, event.LastError)

	readyAt, ok := cache.RetryReadyAt(n.EventID())
	require.True(t, ok)
	assert.Equal(t, testStart.Add(time.Second), readyAt)
}

func TestHandleNotificationLockBusySchedulesRetry(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	cache.LockBusy = true
	clk := clock.NewMockClock(testStart)

	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedAwaitingSession(store, "sess-1", 2)
	seedDraftOrder(store, "ord-1", "sess-1", "TXN-1", 2)

	uc := newWebhookFixture(store, cache, clk)
	n, payload := successNotification("TXN-1", 5000)

	require.NoError(t, uc.HandleNotification(context.Background(), n, payload))

	assert.Equal(t, payment.EventFailed, store.EventByID(n.EventID()).Status)
	_, queued := cache.RetryReadyAt(n.EventID())
	assert.True(t, queued)
	// The business side effect did not run.
	assert.Equal(t, order.StatusDraft, store.OrderByID("ord-1").Status)
}

func TestHandleNotificationLockErrorProceedsWithoutLock(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	cache.LockErr = assert.AnError
	clk := clock.NewMockClock(testStart)

	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedAwaitingSession(store, "sess-1", 2)
	seedDraftOrder(store, "ord-1", "sess-1", "TXN-1", 2)

	uc := newWebhookFixture(store, cache, clk)
	n, payload := successNotification("TXN-1", 5000)

	require.NoError(t, uc.HandleNotification(context.Background(), n, payload))
	assert.Equal(t, order.StatusConfirmed, store.OrderByID("ord-1").Status)
}

func TestRetryExhaustionCreatesEmergencyOrder(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	clk := clock.NewMockClock(testStart)

	n, payload := successNotification("TXN-lost", 7500)
	event := payment.NewEvent(n, payload, testStart)
	event.Status = payment.EventFailed
	event.RetryCount = 4
	store.PutEvent(event)

	uc := newWebhookFixture(store, cache, clk)
	require.NoError(t, uc.RetryEvent(context.Background(), n.EventID()))

	assert.Contains(t, cache.DeadLetters(), n.EventID())

	emergency := store.OrderByIdempotencyKey("emergency-TXN-lost")
	require.NotNil(t, emergency)
	assert.Equal(t, order.StatusConfirmed, emergency.Status)
	assert.Equal(t, int64(7500), emergency.Total)
	assert.True(t, emergency.RequiresManualProcessing)
}

func TestHandleNotificationPaymentErrorReleasesReservation(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	clk := clock.NewMockClock(testStart)

	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedAwaitingSession(store, "sess-1", 2)
	seedDraftOrder(store, "ord-1", "sess-1", "TXN-1", 2)

	uc := newWebhookFixture(store, cache, clk)
	n := payment.Notification{TransactionRef: "TXN-1", OrderRef: "sess-1", Amount: 5000, State: payment.StateError}
	payload, _ := json.Marshal(n)

	require.NoError(t, uc.HandleNotification(context.Background(), n, payload))

	cancelled := store.OrderByID("ord-1")
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, order.PaymentFailed, cancelled.PaymentStatus)

	stockQty, reserved := store.LedgerState("hoodie-01", "M")
	assert.Equal(t, 10, stockQty)
	assert.Equal(t, 0, reserved)

	assert.Equal(t, payment.EventProcessed, store.EventByID(n.EventID()).Status)
}

func TestHandleNotificationPendingStateHasNoSideEffects(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	clk := clock.NewMockClock(testStart)

	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedDraftOrder(store, "ord-1", "sess-1", "TXN-1", 2)

	uc := newWebhookFixture(store, cache, clk)
	n := payment.Notification{TransactionRef: "TXN-1", Amount: 5000, State: payment.StatePending}
	payload, _ := json.Marshal(n)

	require.NoError(t, uc.HandleNotification(context.Background(), n, payload))

	assert.Equal(t, payment.EventProcessed, store.EventByID(n.EventID()).Status)
	assert.Equal(t, order.StatusDraft, store.OrderByID("ord-1").Status)
	stockQty, reserved := store.LedgerState("hoodie-01", "M")
	assert.Equal(t, 10, stockQty)
	assert.Equal(t, 2, reserved)
}

func TestReprocessClearsDeadLetterOnSuccess(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	clk := clock.NewMockClock(testStart)

	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedAwaitingSession(store, "sess-1", 2)
	seedDraftOrder(store, "ord-1", "sess-1", "TXN-1", 2)

	n, payload := successNotification("TXN-1", 5000)
	event := payment.NewEvent(n, payload, testStart)
	event.Status = payment.EventFailed
	event.RetryCount = 5
	store.PutEvent(event)
	require.NoError(t, cache.PushDeadLetter(context.Background(), n.EventID()))

	uc := newWebhookFixture(store, cache, clk)
	require.NoError(t, uc.Reprocess(context.Background(), n.EventID()))

	assert.Equal(t, payment.EventProcessed, store.EventByID(n.EventID()).Status)
	assert.Empty(t, cache.DeadLetters())
	assert.Equal(t, order.StatusConfirmed, store.OrderByID("ord-1").Status)
}

func TestWebhookStats(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	clk := clock.NewMockClock(testStart)

	for i, status := range []payment.EventStatus{payment.EventProcessed, payment.EventProcessed, payment.EventFailed, payment.EventReceived} {
		n := payment.Notification{TransactionRef: "TXN-" + string(rune('a'+i)), State: payment.StateError}
		event := payment.NewEvent(n, nil, testStart)
		event.Status = status
		store.PutEvent(event)
	}

	uc := newWebhookFixture(store, cache, clk)
	stats, err := uc.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.TotalEvents)
	assert.Equal(t, int64(2), stats.ProcessedEvents)
	assert.Equal(t, int64(1), stats.FailedEvents)
	assert.InDelta(t, 0.5, stats.HealthScore, 0.001)
}
