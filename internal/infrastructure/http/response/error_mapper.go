package response

import (
	"errors"
	"net/http"

	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
)

type ErrorMapping struct {
	HTTPStatus int
	Status     Status
	Message    string
}

var errorMappings = map[error]ErrorMapping{
	domainErrors.ErrProductNotFound: {
		HTTPStatus: http.StatusNotFound,
		Status:     StatusNotFound,
		Message:    "Product not found",
	},
	domainErrors.ErrSizeNotFound: {
		HTTPStatus: http.StatusNotFound,
		Status:     StatusNotFound,
		Message:    "Product size not found",
	},
	domainErrors.ErrSessionNotFound: {
		HTTPStatus: http.StatusNotFound,
		Status:     StatusNotFound,
		Message:    "Checkout session not found",
	},
	domainErrors.ErrSessionExpired: {
		HTTPStatus: http.StatusGone,
		Status:     StatusExpired,
		Message:    "Checkout session expired, please retry checkout",
	},
	domainErrors.ErrSessionCancelled: {
		HTTPStatus: http.StatusConflict,
		Status:     StatusConflict,
		Message:    "Checkout session is no longer active",
	},
	domainErrors.ErrSessionConsumed: {
		HTTPStatus: http.StatusConflict,
		Status:     StatusConflict,
		Message:    "Checkout session already consumed by an order",
	},
	domainErrors.ErrNoItems: {
		HTTPStatus: http.StatusBadRequest,
		Status:     StatusError,
		Message:    "No items in checkout",
	},
	domainErrors.ErrOrderNotFound: {
		HTTPStatus: http.StatusNotFound,
		Status:     StatusNotFound,
		Message:    "Order not found",
	},
	domainErrors.ErrOrderCancelled: {
		HTTPStatus: http.StatusConflict,
		Status:     StatusConflict,
		Message:    "Order is cancelled",
	},
	domainErrors.ErrEventNotFound: {
		HTTPStatus: http.StatusNotFound,
		Status:     StatusNotFound,
		Message:    "Payment event not found",
	},
	domainErrors.ErrInvalidSignature: {
		HTTPStatus: http.StatusBadRequest,
		Status:     StatusError,
		Message:    "Signature verification failed",
	},
	domainErrors.ErrTransactionFailed: {
		HTTPStatus: http.StatusInternalServerError,
		Status:     StatusInternalError,
		Message:    "Transaction failed",
	},
}

// MapDomainError translates a domain error into an HTTP status and body.
// Stock conflicts, validation failures and gateway declines carry structured
// payloads; everything else maps through the sentinel table.
func MapDomainError(err error) (int, interface{}) {
	if se, ok := domainErrors.AsStockError(err); ok {
		return http.StatusConflict, &StockConflictResponse{
			Status:    StatusConflict,
			Message:   "Insufficient stock",
			ProductID: se.ProductID,
			Size:      se.Size,
			Requested: se.Requested,
			Available: se.Available,
		}
	}

	var ve *domainErrors.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, &ValidationErrorResponse{
			Status:  StatusValidationError,
			Message: "Validation failed",
			Errors:  ve.Fields,
		}
	}

	var ge *domainErrors.GatewayError
	if errors.As(err, &ge) {
		retryable := ge.Retryable
		return http.StatusBadGateway, &ErrorResponse{
			Status:    StatusDeclined,
			Message:   ge.Message,
			Code:      ge.Code,
			Retryable: &retryable,
		}
	}

	for domainErr, mapping := range errorMappings {
		if errors.Is(err, domainErr) {
			return mapping.HTTPStatus, Error(mapping.Status, mapping.Message)
		}
	}

	return http.StatusInternalServerError, Error(StatusInternalError, "Internal server error")
}

func WriteDomainError(w http.ResponseWriter, err error) {
	statusCode, body := MapDomainError(err)
	WriteJSON(w, statusCode, body)
}
