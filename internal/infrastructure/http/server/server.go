package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lumenwear/storefront-service/internal/config"
	"github.com/lumenwear/storefront-service/internal/infrastructure/http/handlers"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

type Server struct {
	server          *http.Server
	logger          *logger.Logger
	healthHandler   *handlers.HealthHandler
	checkoutHandler *handlers.CheckoutHandler
	paymentHandler  *handlers.PaymentHandler
	webhookHandler  *handlers.WebhookHandler
	adminHandler    *handlers.AdminHandler
}

func NewServer(
	cfg *config.Config,
	log *logger.Logger,
	checkoutHandler *handlers.CheckoutHandler,
	paymentHandler *handlers.PaymentHandler,
	webhookHandler *handlers.WebhookHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
) *Server {
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		server:          server,
		logger:          log,
		healthHandler:   healthHandler,
		checkoutHandler: checkoutHandler,
		paymentHandler:  paymentHandler,
		webhookHandler:  webhookHandler,
		adminHandler:    adminHandler,
	}
}

func (s *Server) ListenAndServe() error {
	s.server.Handler = s.setupRoutes()

	s.logger.Info("Starting HTTP server", "address", s.server.Addr)

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
