package commands

import (
	"context"
	"errors"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/domain/stock"
	"github.com/lumenwear/storefront-service/internal/pkg/clock"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

type CancelSessionCommand struct {
	SessionID string
}

type CancelSessionHandler struct {
	uow   ports.UnitOfWork
	cache ports.Cache
	clk   clock.Clock
	log   *logger.Logger
}

func NewCancelSessionHandler(uow ports.UnitOfWork, cache ports.Cache, clk clock.Clock, log *logger.Logger) *CancelSessionHandler {
	return &CancelSessionHandler{
		uow:   uow,
		cache: cache,
		clk:   clk,
		log:   log,
	}
}

func (h *CancelSessionHandler) Handle(ctx context.Context, cmd CancelSessionCommand) error {
	if cmd.SessionID == "" {
		return domainErrors.NewValidationError(map[string]string{"session_id": "session_id is required"})
	}

	var released []stock.Line

	err := h.uow.Execute(ctx, func(ctx context.Context, repos ports.RepositorySet) error {
		session, err := repos.Sessions().GetByID(ctx, cmd.SessionID)
		if err != nil {
			return err
		}

		// An anchored order owns the reservation from draft creation onward;
		// cancelling the session must not touch stock.
		if _, err := repos.Orders().GetBySessionID(ctx, session.ID); err == nil {
			h.log.Info("Cancel is a stock no-op, order anchored to session", "session_id", session.ID)
			return nil
		} else if !errors.Is(err, domainErrors.ErrOrderNotFound) {
			return err
		}

		if session.Terminal() {
			return nil
		}

		if session.StockReserved {
			for _, item := range session.Items {
				line := stock.Line{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity}
				if err := repos.Ledger().Release(ctx, line); err != nil {
					return err
				}
				released = append(released, line)
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

	for _, line := range released {
		if err := h.cache.InvalidateAvailability(ctx, line.ProductID, line.Size); err != nil {
			h.log.Warn("Failed to invalidate availability cache", "error", err, "product_id", line.ProductID)
		}
	}

	h.log.Info("Checkout session cancelled", "session_id", cmd.SessionID, "released_lines", len(released))
	return nil
}
