package ports

import (
	"context"

	"github.com/lumenwear/storefront-service/internal/domain/checkout"
)

type Quote struct {
	Subtotal int64
	Discount int64
	Shipping int64
}

func (q Quote) Total() int64 {
	return q.Subtotal - q.Discount + q.Shipping
}

// PricingService is the external coupon/shipping pricing collaborator.
// Formulas live outside this service; checkout only consumes the quote.
type PricingService interface {
	Quote(ctx context.Context, items []checkout.Item, couponCode string) (Quote, error)
}
