package response

import (
	"encoding/json"
	"net/http"
)

type Status string

const (
	StatusSuccess         Status = "success"
	StatusError           Status = "error"
	StatusValidationError Status = "validation_error"
	StatusNotFound        Status = "not_found"
	StatusConflict        Status = "conflict"
	StatusExpired         Status = "expired"
	StatusDeclined        Status = "declined"
	StatusInternalError   Status = "internal_error"
)

type ErrorResponse struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	// Retryable is set on payment declines so the client knows whether
	// retrying the same payment can possibly succeed.
	Retryable *bool `json:"retryable,omitempty"`
}

type ValidationErrorResponse struct {
	Status  Status            `json:"status"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// StockConflictResponse carries the actual available quantity so the client
// can adjust instead of blindly retrying.
type StockConflictResponse struct {
	Status    Status `json:"status"`
	Message   string `json:"message"`
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func Error(status Status, message string) *ErrorResponse {
	return &ErrorResponse{Status: status, Message: message}
}

func WriteJSON(w http.ResponseWriter, statusCode int, response interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

func WriteError(w http.ResponseWriter, statusCode int, status Status, message string) {
	WriteJSON(w, statusCode, Error(status, message))
}

func WriteValidationError(w http.ResponseWriter, message string, errors map[string]string) {
	WriteJSON(w, http.StatusBadRequest, &ValidationErrorResponse{
		Status:  StatusValidationError,
		Message: message,
		Errors:  errors,
	})
}
