package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenwear/storefront-service/internal/application/apptest"
	"github.com/lumenwear/storefront-service/internal/application/commands"
	"github.com/lumenwear/storefront-service/internal/infrastructure/pricing"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

var testStart = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newCheckoutFixture(store *apptest.Store, cache *apptest.Cache) *CheckoutHandler {
	uow := apptest.NewUnitOfWork(store, true)
	clk := clock.NewMockClock(testStart)
	log := logger.NewLoggerWithOutput(io.Discard)
	pricingService := pricing.NewService(990, 15000, nil)
	create := commands.NewCreateSessionHandler(uow, cache, pricingService, clk, log, false)
	cancel := commands.NewCancelSessionHandler(uow, cache, clk, log)
	return NewCheckoutHandler(create, cancel, uow, cache, log)
}

func TestHandleCreateSession(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 10, 0, 2500)
	handler := newCheckoutFixture(store, apptest.NewCache())

	body := `{"owner_id":"buyer-1","items":[{"product_id":"hoodie-01","size":"M","quantity":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/sessions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.HandleCreateSession(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp commands.CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, int64(5990), resp.Total)
	assert.True(t, resp.StockReserved)
}

func TestHandleCreateSessionStockConflict(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 1, 0, 2500)
	handler := newCheckoutFixture(store, apptest.NewCache())

	body := `{"owner_id":"buyer-1","items":[{"product_id":"hoodie-01","size":"M","quantity":3}]}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/sessions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.HandleCreateSession(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	var conflict struct {
		Available int `json:"available"`
		Requested int `json:"requested"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, 1, conflict.Available)
	assert.Equal(t, 3, conflict.Requested)
}

func TestHandleCreateSessionMalformedBody(t *testing.T) {
	handler := newCheckoutFixture(apptest.NewStore(), apptest.NewCache())

	req := httptest.NewRequest(http.MethodPost, "/checkout/sessions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	handler.HandleCreateSession(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetSessionNotFound(t *testing.T) {
	handler := newCheckoutFixture(apptest.NewStore(), apptest.NewCache())

	req := httptest.NewRequest(http.MethodGet, "/checkout/sessions/missing", nil)
	rec := httptest.NewRecorder()

	handler.HandleGetSession(rec, req, "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetAvailabilityReadsLedgerAndCaches(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 10, 3, 2500)
	cache := apptest.NewCache()
	handler := newCheckoutFixture(store, cache)

	req := httptest.NewRequest(http.MethodGet, "/checkout/availability/hoodie-01/M", nil)
	rec := httptest.NewRecorder()

	handler.HandleGetAvailability(rec, req, "hoodie-01", "M")
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Available int   `json:"available"`
		UnitPrice int64 `json:"unit_price"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 7, view.Available)
	assert.Equal(t, int64(2500), view.UnitPrice)

	cached, ok, err := cache.GetAvailability(context.Background(), "hoodie-01", "M")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, cached)
}

func TestHandleGetAvailabilityServedFromCache(t *testing.T) {
	store := apptest.NewStore()
	cache := apptest.NewCache()
	// Only the cache knows this size; the ledger is never consulted.
	require.NoError(t, cache.SetAvailability(context.Background(), "hoodie-01", "M", 4, time.Minute))
	handler := newCheckoutFixture(store, cache)

	req := httptest.NewRequest(http.MethodGet, "/checkout/availability/hoodie-01/M", nil)
	rec := httptest.NewRecorder()

	handler.HandleGetAvailability(rec, req, "hoodie-01", "M")
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Available int `json:"available"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 4, view.Available)
}

func TestHandleGetAvailabilityUnknownSize(t *testing.T) {
	handler := newCheckoutFixture(apptest.NewStore(), apptest.NewCache())

	req := httptest.NewRequest(http.MethodGet, "/checkout/availability/hoodie-01/XXL", nil)
	rec := httptest.NewRecorder()

	handler.HandleGetAvailability(rec, req, "hoodie-01", "XXL")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCancelSession(t *testing.T) {
	store := apptest.NewStore()
	store.SeedLedger("hoodie-01", "M", 10, 0, 2500)
	handler := newCheckoutFixture(store, apptest.NewCache())

	body := `{"owner_id":"buyer-1","items":[{"product_id":"hoodie-01","size":"M","quantity":1}]}`
	createReq := httptest.NewRequest(http.MethodPost, "/checkout/sessions", strings.NewReader(body))
	createRec := httptest.NewRecorder()
	handler.HandleCreateSession(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created commands.CreateSessionResponse
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	cancelReq := httptest.NewRequest(http.MethodPost, "/checkout/sessions/"+created.SessionID+"/cancel", nil)
	cancelRec := httptest.NewRecorder()
	handler.HandleCancelSession(cancelRec, cancelReq, created.SessionID)
	require.Equal(t, http.StatusOK, cancelRec.Code)

	_, reserved := store.LedgerState("hoodie-01", "M")
	assert.Zero(t, reserved)
}
