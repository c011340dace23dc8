package use_cases

import (
	"context"
	"errors"
	"time"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/order"
	"github.com/lumenwear/storefront-service/internal/domain/payment"
	"github.com/lumenwear/storefront-service/internal/domain/stock"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
	"github.com/lumenwear/storefront-service/internal/pkg/backoff"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

const (
	// ProcessingStallThreshold is how long a processing claim may sit before
	// another worker treats it as abandoned.
	ProcessingStallThreshold = 10 * time.Second

	paymentLockTTL = 30 * time.Second
)

// WebhookUseCase deduplicates inbound payment notifications and drives their
// business processing. The unique event id, not the distributed lock, is the
// correctness backstop: when redis is unavailable processing degrades to
// "slower, no lock", never to "unsafe".
type WebhookUseCase struct {
	uow      ports.UnitOfWork
	cache    ports.Cache
	commit   *OrderCommitUseCase
	recovery *ReconciliationUseCase
	policy   backoff.Policy
	clk      clock.Clock
	log      *logger.Logger
}

func NewWebhookUseCase(
	uow ports.UnitOfWork,
	cache ports.Cache,
	commit *OrderCommitUseCase,
	recovery *ReconciliationUseCase,
	policy backoff.Policy,
	clk clock.Clock,
	log *logger.Logger,
) *WebhookUseCase {
	return &WebhookUseCase{
		uow:      uow,
		cache:    cache,
		commit:   commit,
		recovery: recovery,
		policy:   policy,
		clk:      clk,
		log:      log,
	}
}

// HandleNotification records the event and processes it. Called after the
// HTTP acknowledgment has been flushed; duplicate deliveries return nil.
func (uc *WebhookUseCase) HandleNotification(ctx context.Context, n payment.Notification, payload []byte) error {
	eventID := n.EventID()
	now := uc.clk.Now()

	// Bloom fast path: skip the insert attempt for events we almost certainly
	// processed. False positives fall through to the datastore check.
	if seen, err := uc.cache.ProcessedEventSeen(ctx, eventID); err == nil && seen {
		if existing, err := uc.getEvent(ctx, eventID); err == nil && existing.Status == payment.EventProcessed {
			monitoring.WebhookDuplicatesTotal.Inc()
			uc.log.Info("Duplicate webhook short-circuited", "event_id", eventID, "transaction_ref", n.TransactionRef)
			return nil
		}
	}

	event := payment.NewEvent(n, payload, now)

	var created bool
	var existing *payment.Event
	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		created, existing, err = repos.Events().InsertIfAbsent(ctx, event)
		return err
	})
	if err != nil {
		return err
	}

	if !created {
		switch {
		case existing.Status == payment.EventProcessed:
			monitoring.WebhookDuplicatesTotal.Inc()
			uc.log.Info("Duplicate webhook, already processed", "event_id", eventID)
			return nil
		case existing.Status == payment.EventProcessing && !existing.Stalled(now, ProcessingStallThreshold):
			monitoring.WebhookDuplicatesTotal.Inc()
			uc.log.Info("Duplicate webhook, processing in flight", "event_id", eventID)
			return nil
		default:
			// failed, received, or a stalled processing claim: reprocess.
		}
	}

	return uc.claimAndProcess(ctx, eventID, n)
}

// RetryEvent reprocesses a previously failed or stalled event. Used by the
// retry worker and the admin manual-replay endpoint.
func (uc *WebhookUseCase) RetryEvent(ctx context.Context, eventID string) error {
	event, err := uc.getEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Status == payment.EventProcessed {
		return nil
	}
	return uc.claimAndProcess(ctx, eventID, event.Notification())
}

func (uc *WebhookUseCase) claimAndProcess(ctx context.Context, eventID string, n payment.Notification) error {
	now := uc.clk.Now()

	var claimed bool
	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		claimed, err = repos.Events().ClaimForProcessing(ctx, eventID, now, ProcessingStallThreshold)
		return err
	})
	if err != nil {
		return err
	}
	if !claimed {
		uc.log.Info("Event claim lost, another worker owns it", "event_id", eventID)
		return nil
	}

	return uc.process(ctx, eventID, n)
}

func (uc *WebhookUseCase) process(ctx context.Context, eventID string, n payment.Notification) error {
	lockKey := "payment:" + n.TransactionRef
	locked, lockErr := uc.cache.AcquireLock(ctx, lockKey, paymentLockTTL)
	if lockErr != nil {
		// Coordination store down. Proceed: the unique event id upsert has
		// already serialized this delivery.
		uc.log.Warn("Distributed lock unavailable, proceeding without lock",
			"event_id", eventID,
			"transaction_ref", n.TransactionRef,
			"error", lockErr.Error(),
		)
	} else if !locked {
		uc.log.Info("Transaction busy in another worker, scheduling retry",
			"event_id", eventID,
			"transaction_ref", n.TransactionRef,
		)
		return uc.handleFailure(ctx, eventID, n, domainErrors.ErrLockUnavailable)
	} else {
		defer func() {
			if err := uc.cache.ReleaseLock(ctx, lockKey); err != nil {
				uc.log.Warn("Failed to release payment lock", "lock_key", lockKey, "error", err.Error())
			}
		}()
	}

	if err := uc.applyBusiness(ctx, n); err != nil {
		return uc.handleFailure(ctx, eventID, n, err)
	}

	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		return repos.Events().MarkProcessed(ctx, eventID, uc.clk.Now())
	})
	if err != nil {
		return err
	}

	if err := uc.cache.AddProcessedEvent(ctx, eventID); err != nil {
		uc.log.Warn("Failed to add event to bloom filter", "event_id", eventID, "error", err.Error())
	}

	uc.log.Info("Webhook event processed",
		"event_id", eventID,
		"transaction_ref", n.TransactionRef,
		"state", n.State,
	)
	return nil
}

func (uc *WebhookUseCase) applyBusiness(ctx context.Context, n payment.Notification) error {
	switch n.State {
	case payment.StateSuccess:
		return uc.applySuccess(ctx, n)
	case payment.StateError:
		return uc.applyFailure(ctx, n)
	default:
		// Pending and informational states carry no side effects.
		uc.log.Info("Webhook carries no actionable state", "transaction_ref", n.TransactionRef, "state", n.State)
		return nil
	}
}

func (uc *WebhookUseCase) applySuccess(ctx context.Context, n payment.Notification) error {
	var draft *order.Order
	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		draft, err = repos.Orders().GetByTransactionRef(ctx, n.TransactionRef)
		return err
	})
	if err != nil {
		return err
	}

	return uc.commit.CommitOrder(ctx, draft.ID, PaymentInfo{
		TransactionRef: n.TransactionRef,
		State:          n.State,
		Amount:         n.Amount,
	})
}

// applyFailure cancels the draft and hands the reservation back to the ledger.
func (uc *WebhookUseCase) applyFailure(ctx context.Context, n payment.Notification) error {
	var released []stock.Line

	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		o, err := repos.Orders().GetByTransactionRef(ctx, n.TransactionRef)
		if err != nil {
			if errors.Is(err, domainErrors.ErrOrderNotFound) {
				// Nothing to unwind; the session reaper covers the reservation.
				return nil
			}
			return err
		}
		if o.Status != order.StatusDraft {
			return nil
		}

		if o.StockReserved && !o.StockConfirmed {
			for _, item := range o.Items {
				line := stock.Line{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity}
				if err := repos.Ledger().Release(ctx, line); err != nil {
					return err
				}
				released = append(released, line)
			}
		}

		o.PaymentStatus = order.PaymentFailed
		if err := o.Cancel(); err != nil {
			return err
		}
		if err := repos.Orders().Update(ctx, o); err != nil {
			return err
		}

		if o.SessionID != "" {
			session, err := repos.Sessions().GetByID(ctx, o.SessionID)
			if err == nil {
				if err := session.Cancel(); err == nil {
					if err := repos.Sessions().Update(ctx, session); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, line := range released {
		if err := uc.cache.InvalidateAvailability(ctx, line.ProductID, line.Size); err != nil {
			uc.log.Warn("Failed to invalidate availability cache", "error", err, "product_id", line.ProductID)
		}
	}
	return nil
}

// handleFailure marks the event failed and schedules a bounded retry.
// Exhausting retries on a successful payment never drops it: the event goes to
// the dead letter, a critical alert fires, and an emergency order is created.
func (uc *WebhookUseCase) handleFailure(ctx context.Context, eventID string, n payment.Notification, cause error) error {
	event, err := uc.getEvent(ctx, eventID)
	if err != nil {
		return err
	}

	markErr := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		return repos.Events().MarkFailed(ctx, eventID, cause.Error())
	})
	if markErr != nil {
		return markErr
	}

	attempts := event.RetryCount + 1
	if !uc.policy.Exhausted(attempts) {
		delay := uc.policy.Delay(event.RetryCount)
		readyAt := uc.clk.Now().Add(delay)
		if err := uc.cache.EnqueueRetry(ctx, eventID, readyAt); err != nil {
			uc.log.Error("Failed to enqueue webhook retry", "event_id", eventID, "error", err.Error())
		}
		uc.log.Warn("Webhook processing failed, retry scheduled",
			"event_id", eventID,
			"transaction_ref", n.TransactionRef,
			"attempt", attempts,
			"retry_in", delay.String(),
			"error", cause.Error(),
		)
		return nil
	}

	if err := uc.cache.PushDeadLetter(ctx, eventID); err != nil {
		uc.log.Error("Failed to push event to dead letter", "event_id", eventID, "error", err.Error())
	}

	critical := &domainErrors.CriticalError{EventID: eventID, Cause: cause}
	uc.log.Error("Webhook retries exhausted",
		"event_id", eventID,
		"transaction_ref", n.TransactionRef,
		"attempts", attempts,
		"error", critical.Error(),
	)

	if n.Success() {
		if err := uc.recovery.CreateEmergencyOrder(ctx, n); err != nil {
			uc.log.Error("Emergency order creation failed, payment still unattributed",
				"event_id", eventID,
				"transaction_ref", n.TransactionRef,
				"error", err.Error(),
			)
			return err
		}
	}
	return nil
}

func (uc *WebhookUseCase) getEvent(ctx context.Context, eventID string) (*payment.Event, error) {
	var event *payment.Event
	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		event, err = repos.Events().GetByID(ctx, eventID)
		return err
	})
	return event, err
}

type WebhookStats struct {
	QueueDepth      int64   `json:"queue_depth"`
	DeadLetterCount int64   `json:"dead_letter_count"`
	TotalEvents     int64   `json:"total_events"`
	ProcessedEvents int64   `json:"processed_events"`
	FailedEvents    int64   `json:"failed_events"`
	HealthScore     float64 `json:"health_score"`
}

func (uc *WebhookUseCase) Stats(ctx context.Context) (*WebhookStats, error) {
	var stats ports.EventStats
	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		stats, err = repos.Events().Stats(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	depth, err := uc.cache.RetryQueueDepth(ctx)
	if err != nil {
		uc.log.Warn("Failed to read retry queue depth", "error", err.Error())
	}
	deadLetters, err := uc.cache.DeadLetterCount(ctx)
	if err != nil {
		uc.log.Warn("Failed to read dead letter count", "error", err.Error())
	}

	return &WebhookStats{
		QueueDepth:      depth,
		DeadLetterCount: deadLetters,
		TotalEvents:     stats.Total,
		ProcessedEvents: stats.Processed,
		FailedEvents:    stats.Failed,
		HealthScore:     stats.HealthScore(),
	}, nil
}

func (uc *WebhookUseCase) ListDeadLetter(ctx context.Context, limit int) ([]*payment.Event, error) {
	var events []*payment.Event
	err := uc.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		events, err = repos.Events().ListDeadLetter(ctx, uc.policy.MaxAttempts, limit)
		return err
	})
	return events, err
}

// Reprocess replays a single failed event by id and clears its dead-letter
// entry on success.
func (uc *WebhookUseCase) Reprocess(ctx context.Context, eventID string) error {
	if err := uc.RetryEvent(ctx, eventID); err != nil {
		return err
	}
	event, err := uc.getEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Status == payment.EventProcessed {
		if err := uc.cache.RemoveDeadLetter(ctx, eventID); err != nil {
			uc.log.Warn("Failed to remove dead letter entry", "event_id", eventID, "error", err.Error())
		}
	}
	return nil
}
