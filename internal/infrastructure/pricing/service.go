package pricing

import (
	"context"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	"github.com/lumenwear/storefront-service/internal/domain/checkout"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
)

// Coupon discounts are expressed in basis points of the subtotal or a fixed
// amount in minor units; when both are set the larger discount wins.
type Coupon struct {
	BasisPointsOff int64
	FixedOff       int64
}

// Service prices a validated item set: subtotal from ledger unit prices, flat
// shipping waived above a threshold, optional coupon discount.
type Service struct {
	flatShipping     int64
	freeShippingOver int64
	coupons          map[string]Coupon
}

func NewService(flatShipping, freeShippingOver int64, coupons map[string]Coupon) *Service {
	return &Service{
		flatShipping:     flatShipping,
		freeShippingOver: freeShippingOver,
		coupons:          coupons,
	}
}

func (s *Service) Quote(ctx context.Context, items []checkout.Item, couponCode string) (ports.Quote, error) {
	var subtotal int64
	for _, item := range items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}

	var discount int64
	if couponCode != "" {
		coupon, ok := s.coupons[couponCode]
		if !ok {
			return ports.Quote{}, domainErrors.NewValidationError(map[string]string{
				"coupon_code": "unknown coupon code",
			})
		}
		discount = coupon.BasisPointsOff * subtotal / 10000
		if coupon.FixedOff > discount {
			discount = coupon.FixedOff
		}
		if discount > subtotal {
			discount = subtotal
		}
	}

	shipping := s.flatShipping
	if s.freeShippingOver > 0 && subtotal-discount >= s.freeShippingOver {
		shipping = 0
	}

	return ports.Quote{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
	}, nil
}
