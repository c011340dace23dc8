package scheduler

import (
	"context"
	"time"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	"github.com/lumenwear/storefront-service/internal/application/use_cases"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

const retryBatchSize = 50

// RetryWorker drains the webhook retry queue: event ids become due when their
// backoff delay elapses, and each is replayed through the webhook use case.
type RetryWorker struct {
	webhooks *use_cases.WebhookUseCase
	cache    ports.Cache
	clk      clock.Clock
	logger   *logger.Logger
	interval time.Duration
	stopChan chan struct{}
}

func NewRetryWorker(webhooks *use_cases.WebhookUseCase, cache ports.Cache, clk clock.Clock, log *logger.Logger, interval time.Duration) *RetryWorker {
	return &RetryWorker{
		webhooks: webhooks,
		cache:    cache,
		clk:      clk,
		logger:   log.WithComponent("webhook-retry-worker"),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (w *RetryWorker) Start(ctx context.Context) {
	w.logger.Info("Starting webhook retry worker", "interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Webhook retry worker stopped")
			return
		case <-w.stopChan:
			w.logger.Info("Webhook retry worker stopped")
			return
		case <-ticker.C:
			if err := w.Drain(ctx); err != nil {
				w.logger.Error("Retry drain failed", "error", err.Error())
			}
		}
	}
}

func (w *RetryWorker) Stop() {
	close(w.stopChan)
}

// Drain replays every due event once. Failures re-enter the queue through the
// webhook use case's own backoff accounting.
func (w *RetryWorker) Drain(ctx context.Context) error {
	due, err := w.cache.DequeueDueRetries(ctx, w.clk.Now(), retryBatchSize)
	if err != nil {
		return err
	}

	for _, eventID := range due {
		monitoring.WebhookRetriesTotal.Inc()
		if err := w.webhooks.RetryEvent(ctx, eventID); err != nil {
			w.logger.Error("Event retry failed", "event_id", eventID, "error", err.Error())
		}
	}

	if depth, err := w.cache.RetryQueueDepth(ctx); err == nil {
		monitoring.WebhookRetryQueueDepth.Set(float64(depth))
	}
	if count, err := w.cache.DeadLetterCount(ctx); err == nil {
		monitoring.WebhookDeadLetterDepth.Set(float64(count))
	}
	return nil
}
