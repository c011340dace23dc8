package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/lumenwear/storefront-service/internal/application/use_cases"
	"github.com/lumenwear/storefront-service/internal/infrastructure/http/response"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

const defaultDeadLetterLimit = 50

type AdminHandler struct {
	webhooks       *use_cases.WebhookUseCase
	reconciliation *use_cases.ReconciliationUseCase
	log            *logger.Logger
}

func NewAdminHandler(webhooks *use_cases.WebhookUseCase, reconciliation *use_cases.ReconciliationUseCase, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		webhooks:       webhooks,
		reconciliation: reconciliation,
		log:            log,
	}
}

func (h *AdminHandler) HandleWebhookStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.webhooks.Stats(r.Context())
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteSuccess(w, stats)
}

type deadLetterView struct {
	EventID        string `json:"event_id"`
	TransactionRef string `json:"transaction_ref"`
	State          string `json:"state"`
	Amount         int64  `json:"amount"`
	RetryCount     int    `json:"retry_count"`
	LastError      string `json:"last_error"`
}

func (h *AdminHandler) HandleDeadLetter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := defaultDeadLetterLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.WriteValidationError(w, "Validation failed", map[string]string{"limit": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	events, err := h.webhooks.ListDeadLetter(r.Context(), limit)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	views := make([]deadLetterView, 0, len(events))
	for _, event := range events {
		views = append(views, deadLetterView{
			EventID:        event.ID,
			TransactionRef: event.TransactionRef,
			State:          event.State,
			Amount:         event.Amount,
			RetryCount:     event.RetryCount,
			LastError:      event.LastError,
		})
	}
	response.WriteSuccess(w, views)
}

type reprocessRequest struct {
	EventID string `json:"event_id"`
}

func (h *AdminHandler) HandleReprocess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req reprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventID == "" {
		response.WriteValidationError(w, "Validation failed", map[string]string{"event_id": "event_id is required"})
		return
	}

	h.log.Info("Manual event reprocess requested", "event_id", req.EventID)

	if err := h.webhooks.Reprocess(r.Context(), req.EventID); err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteSuccess(w, map[string]string{"event_id": req.EventID, "status": "reprocessed"})
}

func (h *AdminHandler) HandleReconciliationRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	h.log.Info("Manual reconciliation run requested")

	report, err := h.reconciliation.Run(r.Context())
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteSuccess(w, report)
}
