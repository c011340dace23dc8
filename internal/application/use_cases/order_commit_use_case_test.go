package use_cases_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenwear/storefront-service/internal/application/apptest"
	"github.com/lumenwear/storefront-service/internal/application/use_cases"
	"github.com/lumenwear/storefront-service/internal/domain/checkout"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/order"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

var testStart = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func testLogger() *logger.Logger {
	return logger.NewLoggerWithOutput(io.Discard)
}

func seedDraftOrder(store *apptest.Store, id, sessionID, transactionRef string, qty int) *order.Order {
	items := []order.Item{{ProductID: "hoodie-01", Size: "M", Quantity: qty, UnitPrice: 2500}}
	draft, err := order.NewDraft(id, "checkout-"+sessionID, sessionID, transactionRef, items, int64(qty)*2500, testStart)
	if err != nil {
		panic(err)
	}
	store.PutOrder(draft)
	return draft
}

func seedAwaitingSession(store *apptest.Store, id string, qty int) *checkout.Session {
	items := []checkout.Item{{ProductID: "hoodie-01", Size: "M", Quantity: qty, UnitPrice: 2500}}
	session, err := checkout.NewSession(id, "buyer-1", "", items, testStart)
	if err != nil {
		panic(err)
	}
	session.SetTotals(int64(qty)*2500, 0, 0)
	session.MarkReserved()
	store.PutSession(session)
	return session
}

func TestCommitOrderDeductsLedgerAndConsumesSession(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedAwaitingSession(store, "sess-1", 2)
	seedDraftOrder(store, "ord-1", "sess-1", "TXN-1", 2)

	uc := use_cases.NewOrderCommitUseCase(
		apptest.NewUnitOfWork(store, true), apptest.NewCache(), clock.NewMockClock(testStart), testLogger())

	err := uc.CommitOrder(context.Background(), "ord-1", use_cases.PaymentInfo{TransactionRef: "TXN-1", Amount: 5000})
	require.NoError(t, err)

	committed := store.OrderByID("ord-1")
	assert.Equal(t, order.StatusConfirmed, committed.Status)
	assert.Equal(t, order.PaymentSuccess, committed.PaymentStatus)
	assert.True(t, committed.StockConfirmed)
	require.NotNil(t, committed.ConfirmedAt)

	stockQty, reserved := store.LedgerState("hoodie-01", "M")
	assert.Equal(t, 8, stockQty)
	assert.Equal(t, 0, reserved)

	assert.Equal(t, checkout.StatusConsumed, store.SessionByID("sess-1").Status)
}

func TestCommitOrderSecondCallIsNoOp(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedAwaitingSession(store, "sess-1", 2)
	seedDraftOrder(store, "ord-1", "sess-1", "TXN-1", 2)

	uc := use_cases.NewOrderCommitUseCase(
		apptest.NewUnitOfWork(store, true), apptest.NewCache(), clock.NewMockClock(testStart), testLogger())

	require.NoError(t, uc.CommitOrder(context.Background(), "ord-1", use_cases.PaymentInfo{TransactionRef: "TXN-1"}))
	require.NoError(t, uc.CommitOrder(context.Background(), "ord-1", use_cases.PaymentInfo{TransactionRef: "TXN-1"}))

	// No double deduction.
	stockQty, reserved := store.LedgerState("hoodie-01", "M")
	assert.Equal(t, 8, stockQty)
	assert.Equal(t, 0, reserved)
}

func TestCommitOrderLedgerFailureLeavesOrderDraft(t *testing.T) {
	store := apptest.NewStore()
	// Reserved units are gone; the confirmation predicate cannot hold.
	store.SeedLedger("hoodie-01", "M", 10, 0, 2500)
	seedDraftOrder(store, "ord-1", "sess-1", "TXN-1", 2)

	uc := use_cases.NewOrderCommitUseCase(
		apptest.NewUnitOfWork(store, true), apptest.NewCache(), clock.NewMockClock(testStart), testLogger())

	err := uc.CommitOrder(context.Background(), "ord-1", use_cases.PaymentInfo{TransactionRef: "TXN-1"})
	require.Error(t, err)

	_, ok := domainErrors.AsStockError(err)
	assert.True(t, ok)
	assert.Equal(t, order.StatusDraft, store.OrderByID("ord-1").Status)

	stockQty, reserved := store.LedgerState("hoodie-01", "M")
	assert.Equal(t, 10, stockQty)
	assert.Equal(t, 0, reserved)
}

func TestCommitOrderCancelledOrderIsRejected(t *testing.T) {
	store := apptest.NewStore()
	draft := seedDraftOrder(store, "ord-1", "sess-1", "TXN-1", 1)
	require.NoError(t, draft.Cancel())
	store.PutOrder(draft)

	uc := use_cases.NewOrderCommitUseCase(
		apptest.NewUnitOfWork(store, true), apptest.NewCache(), clock.NewMockClock(testStart), testLogger())

	err := uc.CommitOrder(context.Background(), "ord-1", use_cases.PaymentInfo{TransactionRef: "TXN-1"})
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotDraft)
}

func TestCommitOrderUnknownOrder(t *testing.T) {
	store := apptest.NewStore()

	uc := use_cases.NewOrderCommitUseCase(
		apptest.NewUnitOfWork(store, true), apptest.NewCache(), clock.NewMockClock(testStart), testLogger())

	err := uc.CommitOrder(context.Background(), "missing", use_cases.PaymentInfo{})
	assert.ErrorIs(t, err, domainErrors.ErrOrderNotFound)
}
