package use_cases

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	"github.com/lumenwear/storefront-service/internal/domain/checkout"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/order"
	"github.com/lumenwear/storefront-service/internal/domain/payment"
	"github.com/lumenwear/storefront-service/internal/domain/stock"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
	"github.com/lumenwear/storefront-service/internal/pkg/generator"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

type PaymentSessionResult struct {
	RedirectURL    string `json:"redirect_url"`
	TransactionRef string `json:"transaction_ref"`
}

// PaymentUseCase drives the third-party redirect flow: draft order creation,
// payment-session snapshot, outbound gateway call.
type PaymentUseCase struct {
	uow     ports.UnitOfWork
	gateway ports.PaymentGateway
	cache   ports.Cache
	refGen  *generator.RefGenerator
	clk     clock.Clock
	log     *logger.Logger

	merchantID      string
	callbackBaseURL string
}

func NewPaymentUseCase(
	uow ports.UnitOfWork,
	gateway ports.PaymentGateway,
	cache ports.Cache,
	refGen *generator.RefGenerator,
	clk clock.Clock,
	log *logger.Logger,
	merchantID string,
	callbackBaseURL string,
) *PaymentUseCase {
	return &PaymentUseCase{
		uow:             uow,
		gateway:         gateway,
		cache:           cache,
		refGen:          refGen,
		clk:             clk,
		log:             log,
		merchantID:      merchantID,
		callbackBaseURL: callbackBaseURL,
	}
}

// CreatePaymentSession creates the draft order that anchors the payment, then
// asks the provider for a redirect URL. The draft exists before the redirect
// is issued so a crash between "payment succeeded" and "order row exists"
// cannot lose the sale.
func (uc *PaymentUseCase) CreatePaymentSession(ctx context.Context, sessionID string) (*PaymentSessionResult, error) {
	if sessionID == "" {
		return nil, domainErrors.NewValidationError(map[string]string{"session_id": "session_id is required"})
	}

	idempotencyKey := "checkout-" + sessionID
	now := uc.clk.Now()

	var session *checkout.Session
	var draft *order.Order

	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		session, err = repos.Sessions().GetByID(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Expired(now) {
			return domainErrors.ErrSessionExpired
		}
		if session.Terminal() {
			return domainErrors.ErrSessionCancelled
		}
		if !session.StockReserved {
			return domainErrors.ErrSessionNotFound
		}

		draft, err = repos.Orders().GetByIdempotencyKey(ctx, idempotencyKey)
		if err != nil && !errors.Is(err, domainErrors.ErrOrderNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Re-entrant call: a draft already exists. Replay the stored redirect if
	// the provider call previously succeeded, otherwise retry it with the
	// same transaction ref.
	if draft != nil {
		return uc.resumePaymentSession(ctx, session, draft)
	}

	transactionRef, err := uc.refGen.GenerateTransactionRef(uc.merchantID)
	if err != nil {
		return nil, err
	}

	items := make([]order.Item, 0, len(session.Items))
	for _, item := range session.Items {
		items = append(items, order.Item{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	draft, err = order.NewDraft(uuid.NewString(), idempotencyKey, session.ID, transactionRef, items, session.Total, now)
	if err != nil {
		return nil, err
	}

	err = uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		if err := repos.Orders().Create(ctx, draft); err != nil {
			return err
		}
		return repos.PaymentSessions().Create(ctx, &payment.Session{
			TransactionRef:    transactionRef,
			CheckoutSessionID: session.ID,
			OrderID:           draft.ID,
			Amount:            session.Total,
			CreatedAt:         now,
		})
	})
	if err != nil {
		if errors.Is(err, domainErrors.ErrDuplicateOrder) {
			// Lost the idempotency race; the winner's draft carries the flow.
			return uc.CreatePaymentSession(ctx, sessionID)
		}
		return nil, err
	}

	return uc.callGateway(ctx, session, draft)
}

func (uc *PaymentUseCase) resumePaymentSession(ctx context.Context, session *checkout.Session, draft *order.Order) (*PaymentSessionResult, error) {
	var snapshot *payment.Session

	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		snapshot, err = repos.PaymentSessions().GetByTransactionRef(ctx, draft.TransactionRef)
		if err != nil && !errors.Is(err, domainErrors.ErrPaymentSessionNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if snapshot != nil && snapshot.RedirectURL != "" {
		uc.log.Info("Replaying existing payment session",
			"session_id", session.ID,
			"transaction_ref", draft.TransactionRef,
		)
		return &PaymentSessionResult{
			RedirectURL:    snapshot.RedirectURL,
			TransactionRef: draft.TransactionRef,
		}, nil
	}

	return uc.callGateway(ctx, session, draft)
}

func (uc *PaymentUseCase) callGateway(ctx context.Context, session *checkout.Session, draft *order.Order) (*PaymentSessionResult, error) {
	resp, err := uc.gateway.CreateSession(ctx, ports.GatewaySessionRequest{
		TransactionRef: draft.TransactionRef,
		OrderRef:       session.ID,
		Amount:         session.Total,
		BuyerID:        session.Buyer(),
		RedirectURL:    uc.callbackBaseURL + "/checkout/sessions/" + session.ID,
	})
	if err != nil {
		uc.log.Error("Payment session creation declined by provider",
			"session_id", session.ID,
			"transaction_ref", draft.TransactionRef,
			"error", err.Error(),
		)
		if abortErr := uc.abortPayment(ctx, session, draft); abortErr != nil {
			uc.log.Error("Failed to abort payment after provider decline",
				"session_id", session.ID,
				"error", abortErr.Error(),
			)
		}
		return nil, err
	}

	err = uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		return repos.PaymentSessions().SetRedirectURL(ctx, draft.TransactionRef, resp.RedirectURL)
	})
	if err != nil {
		uc.log.Warn("Failed to record redirect URL", "transaction_ref", draft.TransactionRef, "error", err.Error())
	}

	uc.log.Info("Payment session created",
		"session_id", session.ID,
		"transaction_ref", draft.TransactionRef,
		"amount", session.Total,
	)

	return &PaymentSessionResult{
		RedirectURL:    resp.RedirectURL,
		TransactionRef: resp.TransactionRef,
	}, nil
}

// abortPayment cancels the draft and releases the session's reservation after
// a provider-side failure.
func (uc *PaymentUseCase) abortPayment(ctx context.Context, session *checkout.Session, draft *order.Order) error {
	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		if err := draft.Cancel(); err != nil {
			return err
		}
		if err := repos.Orders().Update(ctx, draft); err != nil {
			return err
		}

		if session.StockReserved {
			for _, item := range session.Items {
				line := stock.Line{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity}
				if err := repos.Ledger().Release(ctx, line); err != nil {
					return err
				}
			}
		}
		if err := session.Cancel(); err != nil {
			return err
		}
		return repos.Sessions().Update(ctx, session)
	})
	if err != nil {
		return err
	}

	for _, item := range session.Items {
		if cacheErr := uc.cache.InvalidateAvailability(ctx, item.ProductID, item.Size); cacheErr != nil {
			uc.log.Warn("Failed to invalidate availability cache", "error", cacheErr, "product_id", item.ProductID)
		}
	}
	return nil
}

// GetPaymentStatus queries the provider directly, for reconciliation and
// client-side polling.
func (uc *PaymentUseCase) GetPaymentStatus(ctx context.Context, transactionRef string) (*ports.GatewayStatus, error) {
	if transactionRef == "" {
		return nil, domainErrors.NewValidationError(map[string]string{"transaction_ref": "transaction_ref is required"})
	}
	return uc.gateway.GetStatus(ctx, transactionRef)
}
