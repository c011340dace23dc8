package gateway

import (
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
)

// Decline reason taxonomy. Presentation only: nothing downstream branches on
// these beyond showing the reason and the retryable flag.
const (
	DeclineInsufficientFunds = "insufficient_funds"
	DeclineBankError         = "bank_error"
	DeclinePinError          = "pin_error"
	DeclineDeclined          = "declined"
	DeclineNetwork           = "network"
	DeclineTimeout           = "timeout"
	DeclineInvalidIdentifier = "invalid_identifier"
)

type decline struct {
	reason    string
	message   string
	retryable bool
}

var declineTable = map[string]decline{
	"05": {DeclineDeclined, "payment declined by issuer", false},
	"14": {DeclineInvalidIdentifier, "invalid card or account identifier", false},
	"51": {DeclineInsufficientFunds, "insufficient funds", false},
	"55": {DeclinePinError, "incorrect PIN", false},
	"68": {DeclineTimeout, "issuer response timed out", true},
	"91": {DeclineBankError, "issuer unavailable", true},
	"96": {DeclineBankError, "issuer system malfunction", true},
}

// MapDecline translates a provider response code into the fixed taxonomy.
// Unknown codes fall back to a generic non-retryable decline.
func MapDecline(code string) *domainErrors.GatewayError {
	monitoring.GatewayDeclinesTotal.WithLabelValues(code).Inc()

	d, ok := declineTable[code]
	if !ok {
		return &domainErrors.GatewayError{
			Code:      DeclineDeclined,
			Message:   "payment declined (code " + code + ")",
			Retryable: false,
		}
	}
	return &domainErrors.GatewayError{
		Code:      d.reason,
		Message:   d.message,
		Retryable: d.retryable,
	}
}
