package use_cases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/checkout"
	"github.com/lumenwear/storefront-service/internal/domain/order"
	"github.com/lumenwear/storefront-service/internal/domain/payment"
	"github.com/lumenwear/storefront-service/internal/domain/stock"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

type ReconciliationReport struct {
	Scanned             int   `json:"scanned"`
	DraftsConfirmed     int   `json:"drafts_confirmed"`
	RebuiltFromPayment  int   `json:"rebuilt_from_payment_session"`
	RebuiltFromCheckout int   `json:"rebuilt_from_checkout_session"`
	EmergencyOrders     int   `json:"emergency_orders"`
	Failures            int   `json:"failures"`
	EventsPurged        int64 `json:"events_purged"`
}

// ReconciliationUseCase repairs successful payments that lack a confirmed
// order. Recovery strategies run in first-match order, each weaker than the
// last; the absolute floor is an emergency order so money is never
// unattributed.
type ReconciliationUseCase struct {
	uow    ports.UnitOfWork
	commit *OrderCommitUseCase
	clk    clock.Clock
	log    *logger.Logger

	batchSize      int
	eventRetention time.Duration
}

func NewReconciliationUseCase(
	uow ports.UnitOfWork,
	commit *OrderCommitUseCase,
	clk clock.Clock,
	log *logger.Logger,
	batchSize int,
	eventRetention time.Duration,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		uow:            uow,
		commit:         commit,
		clk:            clk,
		log:            log,
		batchSize:      batchSize,
		eventRetention: eventRetention,
	}
}

func (uc *ReconciliationUseCase) Run(ctx context.Context) (*ReconciliationReport, error) {
	report := &ReconciliationReport{}

	var events []*payment.Event
	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		events, err = repos.Events().FindSuccessWithoutOrder(ctx, uc.batchSize)
		return err
	})
	if err != nil {
		return nil, err
	}

	report.Scanned = len(events)
	for _, event := range events {
		strategy, err := uc.recover(ctx, event)
		if err != nil {
			report.Failures++
			uc.log.Error("Reconciliation failed for event",
				"event_id", event.ID,
				"transaction_ref", event.TransactionRef,
				"error", err.Error(),
			)
			continue
		}

		monitoring.ReconciliationRecoveredTotal.WithLabelValues(strategy).Inc()
		switch strategy {
		case "draft_confirmed":
			report.DraftsConfirmed++
		case "payment_session":
			report.RebuiltFromPayment++
		case "checkout_session":
			report.RebuiltFromCheckout++
		case "emergency":
			report.EmergencyOrders++
		}

		markErr := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
			return repos.Events().MarkProcessed(ctx, event.ID, uc.clk.Now())
		})
		if markErr != nil {
			uc.log.Warn("Failed to mark reconciled event processed", "event_id", event.ID, "error", markErr.Error())
		}
	}

	if uc.eventRetention > 0 {
		cutoff := uc.clk.Now().Add(-uc.eventRetention)
		err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
			purged, err := repos.Events().DeleteTerminalOlderThan(ctx, cutoff)
			report.EventsPurged = purged
			return err
		})
		if err != nil {
			uc.log.Warn("Event retention sweep failed", "error", err.Error())
		}
	}

	uc.log.Info("Reconciliation run complete",
		"scanned", report.Scanned,
		"drafts_confirmed", report.DraftsConfirmed,
		"rebuilt_from_payment_session", report.RebuiltFromPayment,
		"rebuilt_from_checkout_session", report.RebuiltFromCheckout,
		"emergency_orders", report.EmergencyOrders,
		"failures", report.Failures,
		"events_purged", report.EventsPurged,
	)

	return report, nil
}

// recover walks the strategy chain. Selection is first-match: once a strategy
// yields a committed order, later strategies are skipped.
func (uc *ReconciliationUseCase) recover(ctx context.Context, event *payment.Event) (string, error) {
	n := event.Notification()
	info := PaymentInfo{TransactionRef: n.TransactionRef, State: n.State, Amount: n.Amount}

	// Strategy 1: an existing DRAFT order just needs confirmation.
	var existing *order.Order
	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		existing, err = repos.Orders().GetByTransactionRef(ctx, n.TransactionRef)
		if errors.Is(err, domainErrors.ErrOrderNotFound) {
			existing = nil
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}
	if existing != nil {
		if existing.Status == order.StatusConfirmed {
			return "draft_confirmed", nil
		}
		if err := uc.commit.CommitOrder(ctx, existing.ID, info); err == nil {
			return "draft_confirmed", nil
		}
		uc.log.Warn("Draft confirmation strategy failed, falling back",
			"transaction_ref", n.TransactionRef, "order_id", existing.ID)
	}

	// Strategy 2: rebuild from the recorded payment-session snapshot.
	var snapshot *payment.Session
	err = uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		snapshot, err = repos.PaymentSessions().GetByTransactionRef(ctx, n.TransactionRef)
		if errors.Is(err, domainErrors.ErrPaymentSessionNotFound) {
			snapshot = nil
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}
	if snapshot != nil {
		if err := uc.rebuildFromCheckoutSession(ctx, snapshot.CheckoutSessionID, n, info); err == nil {
			return "payment_session", nil
		}
		uc.log.Warn("Payment-session rebuild strategy failed, falling back",
			"transaction_ref", n.TransactionRef, "checkout_session_id", snapshot.CheckoutSessionID)
	}

	// Strategy 3: the merchant order ref carries the checkout session id.
	if n.OrderRef != "" {
		if err := uc.rebuildFromCheckoutSession(ctx, n.OrderRef, n, info); err == nil {
			return "checkout_session", nil
		}
		uc.log.Warn("Checkout-session rebuild strategy failed, falling back",
			"transaction_ref", n.TransactionRef, "checkout_session_id", n.OrderRef)
	}

	// Strategy 4: last resort.
	if err := uc.CreateEmergencyOrder(ctx, n); err != nil {
		return "", err
	}
	return "emergency", nil
}

// rebuildFromCheckoutSession recreates a draft from a session snapshot,
// re-earmarks the stock (the original reservation may already be released),
// and commits it.
func (uc *ReconciliationUseCase) rebuildFromCheckoutSession(ctx context.Context, sessionID string, n payment.Notification, info PaymentInfo) error {
	idempotencyKey := "recovered-" + n.TransactionRef
	now := uc.clk.Now()

	var draft *order.Order
	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		if existing, err := repos.Orders().GetByIdempotencyKey(ctx, idempotencyKey); err == nil {
			draft = existing
			return nil
		} else if !errors.Is(err, domainErrors.ErrOrderNotFound) {
			return err
		}

		var session *checkout.Session
		session, err := repos.Sessions().GetByID(ctx, sessionID)
		if err != nil {
			return err
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

		rebuilt, err := order.NewDraft(uuid.NewString(), idempotencyKey, session.ID, n.TransactionRef, items, session.Total, now)
		if err != nil {
			return err
		}
		if err := repos.Orders().Create(ctx, rebuilt); err != nil {
			return err
		}

		// The original reservation is likely gone. Re-earmark the units so the
		// commit path's Confirm predicate holds; if stock truly vanished the
		// reserve fails, this strategy aborts, and the chain falls through.
		if !session.StockReserved {
			for _, item := range session.Items {
				line := stock.Line{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity}
				if err := repos.Ledger().Reserve(ctx, line); err != nil {
					return err
				}
			}
		}

		draft = rebuilt
		return nil
	})
	if err != nil {
		return err
	}

	return uc.commit.CommitOrder(ctx, draft.ID, info)
}

// CreateEmergencyOrder writes the manual-review placeholder carrying only the
// amount and transaction reference. Idempotent per transaction ref.
func (uc *ReconciliationUseCase) CreateEmergencyOrder(ctx context.Context, n payment.Notification) error {
	emergency := order.NewEmergency(uuid.NewString(), n.TransactionRef, n.Amount, uc.clk.Now())

	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		if _, err := repos.Orders().GetByIdempotencyKey(ctx, emergency.IdempotencyKey); err == nil {
			return nil
		} else if !errors.Is(err, domainErrors.ErrOrderNotFound) {
			return err
		}
		return repos.Orders().Create(ctx, emergency)
	})
	if err != nil && !errors.Is(err, domainErrors.ErrDuplicateOrder) {
		return err
	}

	monitoring.EmergencyOrdersTotal.Inc()
	uc.log.Error("Emergency order created, requires manual processing",
		"order_id", emergency.ID,
		"transaction_ref", n.TransactionRef,
		"amount", n.Amount,
	)
	return nil
}
