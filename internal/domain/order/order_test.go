package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
)

var now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func draft(t *testing.T) *Order {
	t.Helper()
	items := []Item{{ProductID: "hoodie-01", Size: "M", Quantity: 2, UnitPrice: 2500}}
	o, err := NewDraft("ord-1", "checkout-sess-1", "sess-1", "TXN-1", items, 5000, now)
	require.NoError(t, err)
	return o
}

func TestNewDraft(t *testing.T) {
	o := draft(t)

	assert.Equal(t, StatusDraft, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.True(t, o.StockReserved)
	assert.False(t, o.StockConfirmed)
	assert.Nil(t, o.ConfirmedAt)
}

func TestNewDraftValidation(t *testing.T) {
	items := []Item{{ProductID: "p", Size: "M", Quantity: 1}}

	_, err := NewDraft("", "key", "sess", "txn", items, 100, now)
	assert.Error(t, err)

	_, err = NewDraft("ord-1", "", "sess", "txn", items, 100, now)
	assert.Error(t, err)

	_, err = NewDraft("ord-1", "key", "sess", "txn", nil, 100, now)
	assert.ErrorIs(t, err, domainErrors.ErrNoItems)
}

func TestConfirm(t *testing.T) {
	o := draft(t)
	confirmedAt := now.Add(time.Minute)

	require.NoError(t, o.Confirm(confirmedAt))
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, PaymentSuccess, o.PaymentStatus)
	assert.True(t, o.StockConfirmed)
	require.NotNil(t, o.ConfirmedAt)
	assert.Equal(t, confirmedAt, *o.ConfirmedAt)
}

func TestConfirmIsIdempotent(t *testing.T) {
	o := draft(t)
	require.NoError(t, o.Confirm(now))
	first := *o.ConfirmedAt

	require.NoError(t, o.Confirm(now.Add(time.Hour)))
	assert.Equal(t, first, *o.ConfirmedAt)
}

func TestConfirmCancelledOrder(t *testing.T) {
	o := draft(t)
	require.NoError(t, o.Cancel())

	assert.ErrorIs(t, o.Confirm(now), domainErrors.ErrOrderCancelled)
}

func TestCancelConfirmedOrder(t *testing.T) {
	o := draft(t)
	require.NoError(t, o.Confirm(now))

	assert.Error(t, o.Cancel())
	assert.Equal(t, StatusConfirmed, o.Status)
}

func TestNewEmergency(t *testing.T) {
	o := NewEmergency("ord-em", "TXN-9", 9900, now)

	assert.Equal(t, "emergency-TXN-9", o.IdempotencyKey)
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, PaymentSuccess, o.PaymentStatus)
	assert.Equal(t, int64(9900), o.Total)
	assert.True(t, o.RequiresManualProcessing)
	assert.Empty(t, o.Items)
}
