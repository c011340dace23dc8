package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	"github.com/lumenwear/storefront-service/internal/domain/checkout"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/stock"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

const reaperBatchSize = 100

// SessionReaper sweeps expired checkout sessions that still hold a stock
// reservation and hands the units back. Sessions anchored to an order are
// skipped: the order owns the reservation from draft creation onward.
type SessionReaper struct {
	uow      ports.UnitOfWork
	cache    ports.Cache
	clk      clock.Clock
	logger   *logger.Logger
	interval time.Duration
	stopChan chan struct{}
}

func NewSessionReaper(uow ports.UnitOfWork, cache ports.Cache, clk clock.Clock, log *logger.Logger, interval time.Duration) *SessionReaper {
	return &SessionReaper{
		uow:      uow,
		cache:    cache,
		clk:      clk,
		logger:   log.WithComponent("session-reaper"),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *SessionReaper) Start(ctx context.Context) {
	s.logger.Info("Starting session reaper", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session reaper stopped")
			return
		case <-s.stopChan:
			s.logger.Info("Session reaper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("Session sweep failed", "error", err.Error())
			}
		}
	}
}

func (s *SessionReaper) Stop() {
	close(s.stopChan)
}

// Sweep releases reservations for one batch of expired sessions.
func (s *SessionReaper) Sweep(ctx context.Context) error {
	now := s.clk.Now()

	var expired []*checkout.Session
	err := s.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		var err error
		expired, err = repos.Sessions().FindExpiredReserved(ctx, now, reaperBatchSize)
		return err
	})
	if err != nil {
		return err
	}

	for _, session := range expired {
		if err := s.reap(ctx, session); err != nil {
			s.logger.Error("Failed to reap expired session", "session_id", session.ID, "error", err.Error())
		}
	}
	return nil
}

func (s *SessionReaper) reap(ctx context.Context, session *checkout.Session) error {
	var released []stock.Line

	err := s.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		// A draft order created just before expiry owns the reservation now.
		if _, err := repos.Orders().GetBySessionID(ctx, session.ID); err == nil {
			session.Status = checkout.StatusConsumed
			return repos.Sessions().Update(ctx, session)
		} else if !errors.Is(err, domainErrors.ErrOrderNotFound) {
			return err
		}

		for _, item := range session.Items {
			line := stock.Line{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity}
			if err := repos.Ledger().Release(ctx, line); err != nil {
				return err
			}
			released = append(released, line)
		}

		session.Status = checkout.StatusExpired
		session.StockReserved = false
		return repos.Sessions().Update(ctx, session)
	})
	if err != nil {
		return err
	}

	for _, line := range released {
		if err := s.cache.InvalidateAvailability(ctx, line.ProductID, line.Size); err != nil {
			s.logger.Warn("Failed to invalidate availability cache", "error", err, "product_id", line.ProductID)
		}
	}

	if len(released) > 0 {
		monitoring.SessionsReapedTotal.Inc()
		s.logger.Info("Expired session reaped",
			"session_id", session.ID,
			"released_lines", len(released),
			"expired_at", session.ExpiresAt,
		)
	}
	return nil
}
