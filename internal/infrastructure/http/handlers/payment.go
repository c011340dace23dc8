package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/lumenwear/storefront-service/internal/application/use_cases"
	"github.com/lumenwear/storefront-service/internal/infrastructure/http/response"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

type PaymentHandler struct {
	payments *use_cases.PaymentUseCase
	log      *logger.Logger
}

func NewPaymentHandler(payments *use_cases.PaymentUseCase, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		log:      log,
	}
}

type createPaymentSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (h *PaymentHandler) HandleCreatePaymentSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createPaymentSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteValidationError(w, "Malformed request body", map[string]string{"body": "invalid JSON"})
		return
	}

	result, err := h.payments.CreatePaymentSession(r.Context(), req.SessionID)
	if err != nil {
		h.log.Error("Payment session creation failed", "session_id", req.SessionID, "error", err.Error())
		response.WriteDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, result)
}

func (h *PaymentHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request, transactionRef string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status, err := h.payments.GetPaymentStatus(r.Context(), transactionRef)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.WriteSuccess(w, status)
}
