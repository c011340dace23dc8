package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenwear/storefront-service/internal/domain/checkout"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
)

func items(unitPrice int64, qty int) []checkout.Item {
	return []checkout.Item{{ProductID: "hoodie-01", Size: "M", Quantity: qty, UnitPrice: unitPrice}}
}

func TestQuoteFlatShipping(t *testing.T) {
	s := NewService(990, 15000, nil)

	quote, err := s.Quote(context.Background(), items(2500, 2), "")
	require.NoError(t, err)

	assert.Equal(t, int64(5000), quote.Subtotal)
	assert.Zero(t, quote.Discount)
	assert.Equal(t, int64(990), quote.Shipping)
	assert.Equal(t, int64(5990), quote.Total())
}

func TestQuoteFreeShippingThreshold(t *testing.T) {
	s := NewService(990, 15000, nil)

	quote, err := s.Quote(context.Background(), items(7500, 2), "")
	require.NoError(t, err)
	assert.Zero(t, quote.Shipping)

	// One minor unit below the threshold still pays shipping.
	quote, err = s.Quote(context.Background(), items(14999, 1), "")
	require.NoError(t, err)
	assert.Equal(t, int64(990), quote.Shipping)
}

func TestQuotePercentageCoupon(t *testing.T) {
	s := NewService(990, 0, map[string]Coupon{"TEN": {BasisPointsOff: 1000}})

	quote, err := s.Quote(context.Background(), items(2500, 2), "TEN")
	require.NoError(t, err)
	assert.Equal(t, int64(500), quote.Discount)
}

func TestQuoteLargerDiscountWins(t *testing.T) {
	s := NewService(990, 0, map[string]Coupon{"MIX": {BasisPointsOff: 1000, FixedOff: 2000}})

	// 10% of 5000 is 500; the fixed 2000 wins.
	quote, err := s.Quote(context.Background(), items(2500, 2), "MIX")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), quote.Discount)
}

func TestQuoteDiscountCappedAtSubtotal(t *testing.T) {
	s := NewService(990, 0, map[string]Coupon{"BIG": {FixedOff: 100000}})

	quote, err := s.Quote(context.Background(), items(2500, 1), "BIG")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), quote.Discount)
	assert.Equal(t, int64(990), quote.Total())
}

func TestQuoteDiscountCountsTowardFreeShipping(t *testing.T) {
	s := NewService(990, 15000, map[string]Coupon{"TEN": {BasisPointsOff: 1000}})

	// Subtotal 16000 clears the threshold, but 16000 - 1600 = 14400 does not.
	quote, err := s.Quote(context.Background(), items(8000, 2), "TEN")
	require.NoError(t, err)
	assert.Equal(t, int64(990), quote.Shipping)
}

func TestQuoteUnknownCoupon(t *testing.T) {
	s := NewService(990, 0, nil)

	_, err := s.Quote(context.Background(), items(2500, 1), "NOPE")
	var ve *domainErrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "coupon_code")
}
