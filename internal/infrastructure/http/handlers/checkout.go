package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/lumenwear/storefront-service/internal/application/commands"
	"github.com/lumenwear/storefront-service/internal/application/ports"
	"github.com/lumenwear/storefront-service/internal/domain/checkout"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/infrastructure/http/response"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

// availabilityCacheTTL bounds how stale a cached availability read may be.
const availabilityCacheTTL = 5 * time.Second

type CheckoutHandler struct {
	createHandler *commands.CreateSessionHandler
	cancelHandler *commands.CancelSessionHandler
	uow           ports.UnitOfWork
	cache         ports.Cache
	log           *logger.Logger
}

func NewCheckoutHandler(
	createHandler *commands.CreateSessionHandler,
	cancelHandler *commands.CancelSessionHandler,
	uow ports.UnitOfWork,
	cache ports.Cache,
	log *logger.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		createHandler: createHandler,
		cancelHandler: cancelHandler,
		uow:           uow,
		cache:         cache,
		log:           log,
	}
}

type createSessionRequest struct {
	OwnerID    string               `json:"owner_id"`
	GuestToken string               `json:"guest_token"`
	CouponCode string               `json:"coupon_code"`
	Items      []commands.ItemInput `json:"items"`
}

func (h *CheckoutHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteValidationError(w, "Malformed request body", map[string]string{"body": "invalid JSON"})
		return
	}

	resp, err := h.createHandler.Handle(r.Context(), commands.CreateSessionCommand{
		OwnerID:    req.OwnerID,
		GuestToken: req.GuestToken,
		CouponCode: req.CouponCode,
		Items:      req.Items,
	})
	if err != nil {
		h.log.Error("Checkout session creation failed", "error", err.Error())
		monitoring.CheckoutFailureTotal.WithLabelValues(failureReason(err)).Inc()
		response.WriteDomainError(w, err)
		return
	}

	monitoring.CheckoutSessionsCreatedTotal.Inc()
	response.WriteJSON(w, http.StatusCreated, resp)
}

type sessionView struct {
	SessionID     string     `json:"session_id"`
	Status        string     `json:"status"`
	Items         []itemView `json:"items"`
	Subtotal      int64      `json:"subtotal"`
	Discount      int64      `json:"discount"`
	ShippingCost  int64      `json:"shipping_cost"`
	Total         int64      `json:"total"`
	StockReserved bool       `json:"stock_reserved"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

type itemView struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func (h *CheckoutHandler) HandleGetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var session *checkout.Session
	err := h.uow.Execute(r.Context(), func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		session, err = repos.Sessions().GetByID(ctx, sessionID)
		return err
	})
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.WriteSuccess(w, toSessionView(session))
}

func (h *CheckoutHandler) HandleCancelSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := h.cancelHandler.Handle(r.Context(), commands.CancelSessionCommand{SessionID: sessionID}); err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.WriteSuccess(w, map[string]string{"session_id": sessionID, "status": string(checkout.StatusCancelled)})
}

type availabilityView struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Available int    `json:"available"`
	UnitPrice int64  `json:"unit_price,omitempty"`
}

// HandleGetAvailability serves the storefront's size-picker read. Cached
// answers skip the ledger; a miss reads the ledger and repopulates the cache.
func (h *CheckoutHandler) HandleGetAvailability(w http.ResponseWriter, r *http.Request, productID, size string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if available, ok, err := h.cache.GetAvailability(r.Context(), productID, size); err == nil && ok {
		response.WriteSuccess(w, &availabilityView{ProductID: productID, Size: size, Available: available})
		return
	}

	var available int
	var unitPrice int64
	err := h.uow.Execute(r.Context(), func(ctx context.Context, repos ports.RepositorySet) error {
		ledger, err := repos.Ledger().GetSizeLedger(ctx, productID, size)
		if err != nil {
			return err
		}
		available = ledger.Available()
		unitPrice = ledger.UnitPrice
		return nil
	})
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	if err := h.cache.SetAvailability(r.Context(), productID, size, available, availabilityCacheTTL); err != nil {
		h.log.Warn("Failed to cache availability", "error", err.Error(), "product_id", productID)
	}

	response.WriteSuccess(w, &availabilityView{
		ProductID: productID,
		Size:      size,
		Available: available,
		UnitPrice: unitPrice,
	})
}

func toSessionView(s *checkout.Session) sessionView {
	items := make([]itemView, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, itemView{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return sessionView{
		SessionID:     s.ID,
		Status:        string(s.Status),
		Items:         items,
		Subtotal:      s.Subtotal,
		Discount:      s.Discount,
		ShippingCost:  s.ShippingCost,
		Total:         s.Total,
		StockReserved: s.StockReserved,
		ExpiresAt:     s.ExpiresAt,
		CreatedAt:     s.CreatedAt,
	}
}

func failureReason(err error) string {
	if _, ok := domainErrors.AsStockError(err); ok {
		return "insufficient_stock"
	}
	var ve *domainErrors.ValidationError
	if errors.As(err, &ve) {
		return "validation"
	}
	return "internal"
}
