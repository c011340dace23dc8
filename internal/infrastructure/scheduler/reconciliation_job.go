package scheduler

import (
	"context"
	"time"

	"github.com/lumenwear/storefront-service/internal/application/use_cases"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

// ReconciliationJob periodically repairs successful payments that lack a
// confirmed order.
type ReconciliationJob struct {
	reconciliation *use_cases.ReconciliationUseCase
	logger         *logger.Logger
	interval       time.Duration
	stopChan       chan struct{}
}

func NewReconciliationJob(reconciliation *use_cases.ReconciliationUseCase, log *logger.Logger, interval time.Duration) *ReconciliationJob {
	return &ReconciliationJob{
		reconciliation: reconciliation,
		logger:         log.WithComponent("reconciliation-job"),
		interval:       interval,
		stopChan:       make(chan struct{}),
	}
}

func (j *ReconciliationJob) Start(ctx context.Context) {
	j.logger.Info("Starting reconciliation job", "interval", j.interval.String())

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Reconciliation job stopped")
			return
		case <-j.stopChan:
			j.logger.Info("Reconciliation job stopped")
			return
		case <-ticker.C:
			report, err := j.reconciliation.Run(ctx)
			if err != nil {
				j.logger.Error("Reconciliation run failed", "error", err.Error())
				continue
			}
			if report.Scanned > 0 {
				j.logger.Info("Reconciliation run finished",
					"scanned", report.Scanned,
					"drafts_confirmed", report.DraftsConfirmed,
					"rebuilt_from_payment_session", report.RebuiltFromPayment,
					"rebuilt_from_checkout_session", report.RebuiltFromCheckout,
					"emergency_orders", report.EmergencyOrders,
					"failures", report.Failures,
					"events_purged", report.EventsPurged,
				)
			}
		}
	}
}

func (j *ReconciliationJob) Stop() {
	close(j.stopChan)
}
