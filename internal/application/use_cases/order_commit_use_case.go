package use_cases

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/order"
	"github.com/lumenwear/storefront-service/internal/domain/stock"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

type PaymentInfo struct {
	TransactionRef string
	State          string
	Amount         int64
}

// OrderCommitUseCase is the single place allowed to move an order
// DRAFT -> CONFIRMED and deduct the stock ledger.
type OrderCommitUseCase struct {
	uow   ports.UnitOfWork
	cache ports.Cache
	clk   clock.Clock
	log   *logger.Logger
}

func NewOrderCommitUseCase(uow ports.UnitOfWork, cache ports.Cache, clk clock.Clock, log *logger.Logger) *OrderCommitUseCase {
	return &OrderCommitUseCase{
		uow:   uow,
		cache: cache,
		clk:   clk,
		log:   log,
	}
}

// CommitOrder confirms the order and deducts the ledger for every item inside
// one unit of work. Committing an already-CONFIRMED order is an idempotent
// no-op success.
func (uc *OrderCommitUseCase) CommitOrder(ctx context.Context, orderID string, info PaymentInfo) error {
	if !uc.uow.Transactional() {
		// Operators must be able to tell when atomicity was weakened.
		uc.log.Warn("Order commit running on sequential best-effort path, atomicity degraded",
			"order_id", orderID,
			"transaction_ref", info.TransactionRef,
		)
	}

	var committed *order.Order

	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		o, err := repos.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}

		if o.Status == order.StatusConfirmed {
			uc.log.Info("Order already confirmed, commit is a no-op", "order_id", orderID)
			return nil
		}
		if o.Status != order.StatusDraft {
			return domainErrors.ErrOrderNotDraft
		}

		if info.Amount != 0 && info.Amount != o.Total {
			uc.log.Warn("Payment amount differs from order total",
				"order_id", orderID,
				"order_total", o.Total,
				"payment_amount", info.Amount,
			)
		}

		for _, item := range o.Items {
			line := stock.Line{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity}
			if err := repos.Ledger().Confirm(ctx, line); err != nil {
				// Should not happen while the reservation holds the units, but
				// defended against: the whole commit aborts and the order
				// stays DRAFT.
				return fmt.Errorf("ledger confirmation failed for %s/%s: %w", item.ProductID, item.Size, err)
			}
		}

		if info.TransactionRef != "" {
			o.TransactionRef = info.TransactionRef
		}
		if err := o.Confirm(uc.clk.Now()); err != nil {
			return err
		}
		if err := repos.Orders().Update(ctx, o); err != nil {
			return err
		}

		if o.SessionID != "" {
			session, err := repos.Sessions().GetByID(ctx, o.SessionID)
			if err == nil {
				if err := session.Consume(); err == nil {
					if err := repos.Sessions().Update(ctx, session); err != nil {
						return err
					}
				}
			} else if !errors.Is(err, domainErrors.ErrSessionNotFound) {
				return err
			}
		}

		committed = o
		return nil
	})
	if err != nil {
		monitoring.OrderCommitFailureTotal.WithLabelValues(commitFailureReason(err)).Inc()
		uc.log.Error("Order commit aborted, order left DRAFT",
			"order_id", orderID,
			"transaction_ref", info.TransactionRef,
			"error", err.Error(),
		)
		return err
	}

	if committed != nil {
		monitoring.OrdersConfirmedTotal.Inc()
		for _, item := range committed.Items {
			if err := uc.cache.InvalidateAvailability(ctx, item.ProductID, item.Size); err != nil {
				uc.log.Warn("Failed to invalidate availability cache", "error", err, "product_id", item.ProductID)
			}
		}
		uc.log.Info("Order confirmed and ledger deducted",
			"order_id", committed.ID,
			"transaction_ref", committed.TransactionRef,
			"items", len(committed.Items),
			"total", committed.Total,
		)
	}

	return nil
}

func commitFailureReason(err error) string {
	if _, ok := domainErrors.AsStockError(err); ok {
		return "ledger"
	}
	if errors.Is(err, domainErrors.ErrOrderNotDraft) || errors.Is(err, domainErrors.ErrOrderCancelled) {
		return "state"
	}
	return "internal"
}
