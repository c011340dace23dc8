package commands

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	"github.com/lumenwear/storefront-service/internal/domain/checkout"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/stock"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

type ItemInput struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type CreateSessionCommand struct {
	OwnerID    string
	GuestToken string
	CouponCode string
	Items      []ItemInput
}

type CreateSessionResponse struct {
	SessionID     string    `json:"session_id"`
	Subtotal      int64     `json:"subtotal"`
	Discount      int64     `json:"discount"`
	ShippingCost  int64     `json:"shipping_cost"`
	Total         int64     `json:"total"`
	StockReserved bool      `json:"stock_reserved"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type CreateSessionHandler struct {
	uow     ports.UnitOfWork
	cache   ports.Cache
	pricing ports.PricingService
	clk     clock.Clock
	log     *logger.Logger

	// rejectPriceMismatch gates whether a client price diverging from the
	// ledger price blocks checkout. Default false: warn and use server price.
	rejectPriceMismatch bool
}

func NewCreateSessionHandler(
	uow ports.UnitOfWork,
	cache ports.Cache,
	pricing ports.PricingService,
	clk clock.Clock,
	log *logger.Logger,
	rejectPriceMismatch bool,
) *CreateSessionHandler {
	return &CreateSessionHandler{
		uow:                 uow,
		cache:               cache,
		pricing:             pricing,
		clk:                 clk,
		log:                 log,
		rejectPriceMismatch: rejectPriceMismatch,
	}
}

func (h *CreateSessionHandler) Handle(ctx context.Context, cmd CreateSessionCommand) (*CreateSessionResponse, error) {
	if err := h.validate(cmd); err != nil {
		return nil, err
	}

	// Re-validate every item against the ledger's current truth. Client
	// prices are never trusted; the reservation below is conditional, so a
	// race between this read and the reserve cannot oversell.
	items, err := h.validateItems(ctx, cmd)
	if err != nil {
		return nil, err
	}

	quote, err := h.pricing.Quote(ctx, items, cmd.CouponCode)
	if err != nil {
		h.log.Error("Pricing quote failed", "error", err, "coupon", cmd.CouponCode)
		return nil, err
	}

	session, err := checkout.NewSession(uuid.NewString(), cmd.OwnerID, cmd.GuestToken, items, h.clk.Now())
	if err != nil {
		return nil, err
	}
	session.SetTotals(quote.Subtotal, quote.Discount, quote.Shipping)

	// Persist the session and batch-reserve stock in one unit of work. A
	// failed reservation for any item aborts the whole batch; no session is
	// ever left holding a partial reservation.
	err = h.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		if err := repos.Sessions().Create(ctx, session); err != nil {
			return err
		}
		for _, item := range session.Items {
			line := stock.Line{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity}
			if err := repos.Ledger().Reserve(ctx, line); err != nil {
				return err
			}
		}
		session.MarkReserved()
		return repos.Sessions().Update(ctx, session)
	})
	if err != nil {
		if se, ok := domainErrors.AsStockError(err); ok {
			h.log.Warn("Reservation conflict during checkout",
				"product_id", se.ProductID,
				"size", se.Size,
				"requested", se.Requested,
				"available", se.Available,
			)
		}
		return nil, err
	}

	for _, item := range session.Items {
		if err := h.cache.InvalidateAvailability(ctx, item.ProductID, item.Size); err != nil {
			h.log.Warn("Failed to invalidate availability cache", "error", err, "product_id", item.ProductID)
		}
	}

	h.log.Info("Checkout session created",
		"session_id", session.ID,
		"buyer", session.Buyer(),
		"items", len(session.Items),
		"total", session.Total,
		"expires_at", session.ExpiresAt,
	)

	return &CreateSessionResponse{
		SessionID:     session.ID,
		Subtotal:      session.Subtotal,
		Discount:      session.Discount,
		ShippingCost:  session.ShippingCost,
		Total:         session.Total,
		StockReserved: session.StockReserved,
		ExpiresAt:     session.ExpiresAt,
	}, nil
}

func (h *CreateSessionHandler) validate(cmd CreateSessionCommand) error {
	fields := make(map[string]string)
	if cmd.OwnerID == "" && cmd.GuestToken == "" {
		fields["buyer"] = "owner_id or guest_token is required"
	}
	if len(cmd.Items) == 0 {
		fields["items"] = "at least one item is required"
	}
	for _, item := range cmd.Items {
		if item.ProductID == "" {
			fields["items.product_id"] = "product_id is required"
		}
		if item.Size == "" {
			fields["items.size"] = "size is required"
		}
		if item.Quantity <= 0 {
			fields["items.quantity"] = "quantity must be positive"
		}
	}
	if len(fields) > 0 {
		return domainErrors.NewValidationError(fields)
	}
	return nil
}

func (h *CreateSessionHandler) validateItems(ctx context.Context, cmd CreateSessionCommand) ([]checkout.Item, error) {
	items := make([]checkout.Item, 0, len(cmd.Items))

	err := h.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		for _, input := range cmd.Items {
			ledger, err := repos.Ledger().GetSizeLedger(ctx, input.ProductID, input.Size)
			if err != nil {
				return err
			}

			if ledger.Available() < input.Quantity {
				return domainErrors.NewStockError(input.ProductID, input.Size, input.Quantity, ledger.Available())
			}

			if input.UnitPrice != 0 && input.UnitPrice != ledger.UnitPrice {
				h.log.Warn("Client price mismatch",
					"product_id", input.ProductID,
					"size", input.Size,
					"client_price", input.UnitPrice,
					"server_price", ledger.UnitPrice,
				)
				if h.rejectPriceMismatch {
					return domainErrors.NewValidationError(map[string]string{
						"items.unit_price": "price does not match current catalog price",
					})
				}
			}

			items = append(items, checkout.Item{
				ProductID: input.ProductID,
				Size:      input.Size,
				Quantity:  input.Quantity,
				UnitPrice: ledger.UnitPrice,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}
