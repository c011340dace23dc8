package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/lumenwear/storefront-service/internal/application/ports"
	"github.com/lumenwear/storefront-service/internal/config"
	domainErrors "github.com/lumenwear/storefront-service/internal/domain/errors"
	"github.com/lumenwear/storefront-service/internal/infrastructure/monitoring"
	"github.com/lumenwear/storefront-service/internal/pkg/logger"
)

const responseApproved = "00"

// Client is the outbound HTTP client to the payment provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	merchantID string
	logger     *logger.Logger
}

func NewClient(cfg config.GatewayConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		baseURL:    cfg.BaseURL,
		merchantID: cfg.MerchantID,
		logger:     log.WithComponent("payment-gateway"),
	}
}

type sessionRequest struct {
	MerchantID     string `json:"merchantId"`
	TransactionRef string `json:"transactionRef"`
	OrderRef       string `json:"orderRef"`
	Amount         int64  `json:"amount"`
	BuyerID        string `json:"buyerId,omitempty"`
	RedirectURL    string `json:"redirectUrl"`
}

type sessionResponse struct {
	TransactionRef  string `json:"transactionRef"`
	RedirectURL     string `json:"redirectUrl"`
	ResponseCode    string `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
}

type statusResponse struct {
	TransactionRef string `json:"transactionRef"`
	State          string `json:"state"`
	Amount         int64  `json:"amount"`
	ResponseCode   string `json:"responseCode"`
}

func (c *Client) CreateSession(ctx context.Context, req ports.GatewaySessionRequest) (*ports.GatewaySessionResponse, error) {
	body := sessionRequest{
		MerchantID:     c.merchantID,
		TransactionRef: req.TransactionRef,
		OrderRef:       req.OrderRef,
		Amount:         req.Amount,
		BuyerID:        req.BuyerID,
		RedirectURL:    req.RedirectURL,
	}

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/payment-sessions", body, &resp, "create_session"); err != nil {
		return nil, err
	}

	if resp.ResponseCode != responseApproved {
		c.logger.Warn("Payment session declined",
			"transaction_ref", req.TransactionRef,
			"response_code", resp.ResponseCode,
		)
		return nil, MapDecline(resp.ResponseCode)
	}

	return &ports.GatewaySessionResponse{
		TransactionRef: resp.TransactionRef,
		RedirectURL:    resp.RedirectURL,
	}, nil
}

func (c *Client) GetStatus(ctx context.Context, transactionRef string) (*ports.GatewayStatus, error) {
	path := fmt.Sprintf("/api/v1/payment-sessions/%s/status?merchantId=%s", transactionRef, c.merchantID)

	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, "get_status"); err != nil {
		return nil, err
	}

	return &ports.GatewayStatus{
		TransactionRef: resp.TransactionRef,
		State:          resp.State,
		Amount:         resp.Amount,
		ResponseCode:   resp.ResponseCode,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, operation string) error {
	start := time.Now()
	defer func() {
		monitoring.GatewayRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &domainErrors.GatewayError{
			Code:      DeclineBankError,
			Message:   fmt.Sprintf("provider returned status %d", resp.StatusCode),
			Retryable: true,
		}
	}
	if resp.StatusCode >= 400 {
		return &domainErrors.GatewayError{
			Code:      DeclineInvalidIdentifier,
			Message:   fmt.Sprintf("provider rejected request with status %d", resp.StatusCode),
			Retryable: false,
		}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func transportError(err error) *domainErrors.GatewayError {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return &domainErrors.GatewayError{
			Code:      DeclineTimeout,
			Message:   "provider request timed out",
			Retryable: true,
		}
	}
	return &domainErrors.GatewayError{
		Code:      DeclineNetwork,
		Message:   "provider unreachable: " + err.Error(),
		Retryable: true,
	}
}
