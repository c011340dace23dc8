package ports

import "context"

type GatewaySessionRequest struct {
	TransactionRef string
	OrderRef       string
	Amount         int64
	BuyerID        string
	RedirectURL    string
}

type GatewaySessionResponse struct {
	TransactionRef string
	RedirectURL    string
}

type GatewayStatus struct {
	TransactionRef string
	State          string
	Amount         int64
	ResponseCode   string
}

// PaymentGateway is the outbound client to the external payment provider.
// Errors are *errors.GatewayError, already mapped to the decline taxonomy.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req GatewaySessionRequest) (*GatewaySessionResponse, error)
	GetStatus(ctx context.Context, transactionRef string) (*GatewayStatus, error)
}
