package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenwear/storefront-service/internal/infrastructure/http/middleware"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
)

func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.healthHandler.HandleHealth())

	mux.HandleFunc("/checkout/sessions", s.checkoutHandler.HandleCreateSession)
	mux.HandleFunc("/checkout/sessions/", s.handleCheckoutRoutes)
	mux.HandleFunc("/checkout/availability/", s.handleAvailabilityRoutes)

	mux.HandleFunc("/payments/sessions", s.paymentHandler.HandleCreatePaymentSession)
	mux.HandleFunc("/payments/webhook", s.webhookHandler.HandleWebhook)
	mux.HandleFunc("/payments/", s.handlePaymentRoutes)

	mux.HandleFunc("/admin/webhooks/stats", s.adminHandler.HandleWebhookStats)
	mux.HandleFunc("/admin/webhooks/dead-letter", s.adminHandler.HandleDeadLetter)
	mux.HandleFunc("/admin/webhooks/reprocess", s.adminHandler.HandleReprocess)
	mux.HandleFunc("/admin/reconciliation/run", s.adminHandler.HandleReconciliationRun)

	handler := middleware.NewRecoveryMiddleware(s.logger)(mux)
	handler = middleware.NewLoggingMiddleware(s.logger)(handler)
	handler = monitoring.WrapHandler(handler)
	handler = s.corsMiddleware(handler)
	handler = s.timeoutMiddleware(handler)

	return handler
}

func (s *Server) handleCheckoutRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/checkout/sessions/")
	parts := strings.Split(path, "/")

	if len(parts) == 1 && parts[0] != "" {
		s.checkoutHandler.HandleGetSession(w, r, parts[0])
		return
	}
	if len(parts) == 2 && parts[0] != "" && parts[1] == "cancel" {
		s.checkoutHandler.HandleCancelSession(w, r, parts[0])
		return
	}

	http.NotFound(w, r)
}

func (s *Server) handleAvailabilityRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/checkout/availability/")
	parts := strings.Split(path, "/")

	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		s.checkoutHandler.HandleGetAvailability(w, r, parts[0], parts[1])
		return
	}

	http.NotFound(w, r)
}

func (s *Server) handlePaymentRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/payments/")
	parts := strings.Split(path, "/")

	if len(parts) == 2 && parts[0] != "" && parts[1] == "status" {
		s.paymentHandler.HandleGetStatus(w, r, parts[0])
		return
	}

	http.NotFound(w, r)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Signature")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.TimeoutHandler(next, 90*time.Second, "Request timeout")
}
