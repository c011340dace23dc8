package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/lumenwear/storefront-service/internal/application/use_cases"
	"github.com/lumenwear/storefront-service/internal/domain/payment"
	"github.com/lumenwear/storefront-service/internal/infrastructure/gateway"
	"github.com/lumenwear/storefront-service/internal/infrastructure/http/response"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

const (
	webhookRoute       = "/payments/webhook"
	maxWebhookBodySize = 1 << 20

	// processTimeout bounds the async business processing of one delivery;
	// anything slower falls to the retry queue.
	processTimeout = 30 * time.Second
)

// WebhookHandler acknowledges provider notifications. The 200 response is
// flushed before business processing starts: the provider retries aggressively
// on non-200, so non-200 is reserved for malformed requests only.
type WebhookHandler struct {
	webhooks *use_cases.WebhookUseCase
	verifier *gateway.SignatureVerifier
	log      *logger.Logger
}

func NewWebhookHandler(webhooks *use_cases.WebhookUseCase, verifier *gateway.SignatureVerifier, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhooks: webhooks,
		verifier: verifier,
		log:      log.WithComponent("webhook-handler"),
	}
}

func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		monitoring.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		response.WriteError(w, http.StatusBadRequest, response.StatusError, "Unreadable request body")
		return
	}

	if err := h.verifier.Verify(body, webhookRoute, r.Header.Get("X-Signature")); err != nil {
		h.log.Warn("Webhook signature rejected", "remote_addr", r.RemoteAddr)
		monitoring.WebhookEventsTotal.WithLabelValues("bad_signature").Inc()
		response.WriteDomainError(w, err)
		return
	}

	var n payment.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		monitoring.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		response.WriteError(w, http.StatusBadRequest, response.StatusError, "Malformed notification body")
		return
	}
	if n.TransactionRef == "" || n.State == "" {
		monitoring.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		response.WriteValidationError(w, "Validation failed", map[string]string{
			"transactionRef": "transactionRef and state are required",
		})
		return
	}

	monitoring.WebhookEventsTotal.WithLabelValues("accepted").Inc()
	response.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})

	// The acknowledgment above is flushed when this handler returns; the
	// request context dies with it, so processing runs on a detached context.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()

		if err := h.webhooks.HandleNotification(ctx, n, body); err != nil {
			h.log.Error("Webhook processing failed after acknowledgment",
				"event_id", n.EventID(),
				"transaction_ref", n.TransactionRef,
				"error", err.Error(),
			)
		}
	}()
}
