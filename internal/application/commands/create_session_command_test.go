package commands_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenwear/storefront-service/internal/application/apptest"
	"github.com/lumenwear/storefront-service/internal/application/commands"
	"github.com/lumenwear/storefront-service/internal/domain/checkout"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/infrastructure/pricing"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

var testStart = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func testLogger() *logger.Logger {
	return logger.NewLoggerWithOutput(io.Discard)
}

func newCreateHandler(store *apptest.Store, rejectPriceMismatch bool) *commands.CreateSessionHandler {
	pricingService := pricing.NewService(990, 15000, map[string]pricing.Coupon{
		"WELCOME10": {BasisPointsOff: 1000},
	})
	return commands.NewCreateSessionHandler(
		apptest.NewUnitOfWork(store, true),
		apptest.NewCache(),
		pricingService,
		clock.NewMockClock(testStart),
		testLogger(),
		rejectPriceMismatch,
	)
}

func TestCreateSessionReservesStock(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 10, 0, 2500)

	handler := newCreateHandler(store, false)
	resp, err := handler.Handle(context.Background(), commands.CreateSessionCommand{
		OwnerID: "buyer-1",
		Items:   []commands.ItemInput{{ProductID: "hoodie-01", Size: "M", Quantity: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5000), resp.Subtotal)
	assert.Equal(t, int64(990), resp.ShippingCost)
	assert.Equal(t, int64(5990), resp.Total)
	assert.True(t, resp.StockReserved)
	assert.Equal(t, testStart.Add(checkout.SessionTTL), resp.ExpiresAt)

	_, reserved := store.LedgerState("hoodie-01", "M")
	assert.Equal(t, 2, reserved)

	session := store.SessionByID(resp.SessionID)
	require.NotNil(t, session)
	assert.Equal(t, checkout.StatusAwaitingPayment, session.Status)
}

func TestCreateSessionCouponAndFreeShipping(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("coat-02", "L", 5, 0, 20000)

	handler := newCreateHandler(store, false)
	resp, err := handler.Handle(context.Background(), commands.CreateSessionCommand{
		OwnerID:    "buyer-1",
		CouponCode: "WELCOME10",
		Items:      []commands.ItemInput{{ProductID: "coat-02", Size: "L", Quantity: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(20000), resp.Subtotal)
	assert.Equal(t, int64(2000), resp.Discount)
	assert.Zero(t, resp.ShippingCost)
	assert.Equal(t, int64(18000), resp.Total)
}

func TestCreateSessionInsufficientStock(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 3, 2, 2500)

	handler := newCreateHandler(store, false)
	_, err := handler.Handle(context.Background(), commands.CreateSessionCommand{
		OwnerID: "buyer-1",
		Items:   []commands.ItemInput{{ProductID: "hoodie-01", Size: "M", Quantity: 2}},
	})
	require.Error(t, err)

	se, ok := domainErrors.AsStockError(err)
	require.True(t, ok)
	assert.Equal(t, "hoodie-01", se.ProductID)
	assert.Equal(t, "M", se.Size)
	assert.Equal(t, 2, se.Requested)
	assert.Equal(t, 1, se.Available)

	// Nothing was earmarked.
	_, reserved := store.LedgerState("hoodie-01", "M")
	assert.Equal(t, 2, reserved)
}

func TestCreateSessionLastUnitUnderContention(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 1, 0, 2500)

	handler := newCreateHandler(store, false)

	const buyers = 16
	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = handler.Handle(context.Background(), commands.CreateSessionCommand{
				OwnerID: fmt.Sprintf("buyer-%d", i),
				Items:   []commands.ItemInput{{ProductID: "hoodie-01", Size: "M", Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	// Exactly one buyer gets the last unit; everyone else sees a stock error.
	var wins, conflicts int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		_, ok := domainErrors.AsStockError(err)
		require.True(t, ok, "unexpected error: %v", err)
		conflicts++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, buyers-1, conflicts)

	stockQty, reserved := store.LedgerState("hoodie-01", "M")
	assert.Equal(t, 1, stockQty)
	assert.Equal(t, 1, reserved)
}

func TestCreateSessionServerPriceWinsOnMismatch(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 10, 0, 2500)

	handler := newCreateHandler(store, false)
	resp, err := handler.Handle(context.Background(), commands.CreateSessionCommand{
		OwnerID: "buyer-1",
		Items:   []commands.ItemInput{{ProductID: "hoodie-01", Size: "M", Quantity: 1, UnitPrice: 999}},
	})
	require.NoError(t, err)

	// Stale client price is ignored; the ledger price is charged.
	assert.Equal(t, int64(2500), resp.Subtotal)
}

func TestCreateSessionRejectsPriceMismatchWhenConfigured(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 10, 0, 2500)

	handler := newCreateHandler(store, true)
	_, err := handler.Handle(context.Background(), commands.CreateSessionCommand{
		OwnerID: "buyer-1",
		Items:   []commands.ItemInput{{ProductID: "hoodie-01", Size: "M", Quantity: 1, UnitPrice: 999}},
	})

	var ve *domainErrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "items.unit_price")
}

func TestCreateSessionUnknownCoupon(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 10, 0, 2500)

	handler := newCreateHandler(store, false)
	_, err := handler.Handle(context.Background(), commands.CreateSessionCommand{
		OwnerID:    "buyer-1",
		CouponCode: "NOPE",
		Items:      []commands.ItemInput{{ProductID: "hoodie-01", Size: "M", Quantity: 1}},
	})

	var ve *domainErrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "coupon_code")
}

func TestCreateSessionValidation(t *testing.T) {
	handler := newCreateHandler(apptest.NewStore(), false)

	_, err := handler.Handle(context.Background(), commands.CreateSessionCommand{})
	var ve *domainErrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "buyer")
	assert.Contains(t, ve.Fields, "items")

	_, err = handler.Handle(context.Background(), commands.CreateSessionCommand{
		GuestToken: "guest-1",
		Items:      []commands.ItemInput{{ProductID: "", Size: "M", Quantity: 0}},
	})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "items.product_id")
	assert.Contains(t, ve.Fields, "items.quantity")
}

func TestCreateSessionUnknownSize(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 10, 0, 2500)

	handler := newCreateHandler(store, false)
	_, err := handler.Handle(context.Background(), commands.CreateSessionCommand{
		OwnerID: "buyer-1",
		Items:   []commands.ItemInput{{ProductID: "hoodie-01", Size: "XXL", Quantity: 1}},
	})
	assert.ErrorIs(t, err, domainErrors.ErrSizeNotFound)
}
