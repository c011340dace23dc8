package use_cases_test

import (
	"context"
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
	"github.com/lumenwear/storefront-service/internal/pkg/generator"
)

func newPaymentFixture(store *apptest.Store, gw *apptest.Gateway, clk *clock.MockClock) *use_cases.PaymentUseCase {
	return use_cases.NewPaymentUseCase(
		apptest.NewUnitOfWork(store, true),
		gw,
		apptest.NewCache(),
		generator.NewRefGenerator(),
		clk,
		testLogger(),
		"LUMEN",
		"https://shop.example.test",
	)
}

func TestCreatePaymentSessionCreatesDraftAndRedirect(t *testing.T) {
	store := apptest.NewStore()
	gw := &apptest.Gateway{}
	clk := clock.NewMockClock(testStart)

	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedAwaitingSession(store, "sess-1", 2)

	uc := newPaymentFixture(store, gw, clk)
	result, err := uc.CreatePaymentSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.RedirectURL)
	assert.NotEmpty(t, result.TransactionRef)

	draft := store.OrderByIdempotencyKey("checkout-sess-1")
	require.NotNil(t, draft)
	assert.Equal(t, order.StatusDraft, draft.Status)
	assert.Equal(t, "sess-1", draft.SessionID)
	assert.Equal(t, int64(5000), draft.Total)

	snapshot := store.PaymentSessionByTransactionRef(draft.TransactionRef)
	require.NotNil(t, snapshot)
	assert.Equal(t, "sess-1", snapshot.CheckoutSessionID)
	assert.Equal(t, result.RedirectURL, snapshot.RedirectURL)

	require.Len(t, gw.CreateCalls, 1)
	assert.Equal(t, "sess-1", gw.CreateCalls[0].OrderRef)
	assert.Equal(t, int64(5000), gw.CreateCalls[0].Amount)
}

func TestCreatePaymentSessionIsReentrant(t *testing.T) {
	store := apptest.NewStore()
	gw := &apptest.Gateway{}
	clk := clock.NewMockClock(testStart)

	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedAwaitingSession(store, "sess-1", 2)

	uc := newPaymentFixture(store, gw, clk)
	first, err := uc.CreatePaymentSession(context.Background(), "sess-1")
	require.NoError(t, err)

	second, err := uc.CreatePaymentSession(context.Background(), "sess-1")
	require.NoError(t, err)

	// The stored redirect is replayed; the provider is not called again.
	assert.Equal(t, first.RedirectURL, second.RedirectURL)
	assert.Equal(t, first.TransactionRef, second.TransactionRef)
	assert.Len(t, gw.CreateCalls, 1)
	assert.Equal(t, 1, store.OrderCount())
}

func TestCreatePaymentSessionExpiredSession(t *testing.T) {
	store := apptest.NewStore()
	gw := &apptest.Gateway{}
	clk := clock.NewMockClock(testStart.Add(checkout.SessionTTL + time.Minute))

	seedAwaitingSession(store, "sess-1", 2)

	uc := newPaymentFixture(store, gw, clk)
	_, err := uc.CreatePaymentSession(context.Background(), "sess-1")
	assert.ErrorIs(t, err, domainErrors.ErrSessionExpired)
	assert.Empty(t, gw.CreateCalls)
}

func TestCreatePaymentSessionProviderDeclineAborts(t *testing.T) {
	store := apptest.NewStore()
	gw := &apptest.Gateway{
		CreateErr: &domainErrors.GatewayError{Code: "insufficient_funds", Message: "insufficient funds"},
	}
	clk := clock.NewMockClock(testStart)

	store.SeedLedger("hoodie-01", "M", 10, 2, 2500)
	seedAwaitingSession(store, "sess-1", 2)

	uc := newPaymentFixture(store, gw, clk)
	_, err := uc.CreatePaymentSession(context.Background(), "sess-1")
	require.Error(t, err)

	var ge *domainErrors.GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "insufficient_funds", ge.Code)

	draft := store.OrderByIdempotencyKey("checkout-sess-1")
	require.NotNil(t, draft)
	assert.Equal(t, order.StatusCancelled, draft.Status)

	// The reservation went back to the ledger and the session terminated.
	_, reserved := store.LedgerState("hoodie-01", "M")
	assert.Equal(t, 0, reserved)
	assert.Equal(t, checkout.StatusCancelled, store.SessionByID("sess-1").Status)
}

func TestCreatePaymentSessionValidation(t *testing.T) {
	uc := newPaymentFixture(apptest.NewStore(), &apptest.Gateway{}, clock.NewMockClock(testStart))

	_, err := uc.CreatePaymentSession(context.Background(), "")
	var ve *domainErrors.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = uc.GetPaymentStatus(context.Background(), "")
	assert.ErrorAs(t, err, &ve)
}

func TestGetPaymentStatusQueriesProvider(t *testing.T) {
	gw := &apptest.Gateway{}
	uc := newPaymentFixture(apptest.NewStore(), gw, clock.NewMockClock(testStart))

	status, err := uc.GetPaymentStatus(context.Background(), "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, "TXN-1", status.TransactionRef)
	assert.Equal(t, []string{"TXN-1"}, gw.StatusCalls)
}
