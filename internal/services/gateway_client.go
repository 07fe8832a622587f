package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/telemetry"
)

const gatewayProvider = "payment_gateway"

// PaymentGateway creates the gateway-side order a customer pays against.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error)
}

type GatewayOrderRequest struct {
	// Amount is in minor currency units.
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
	Status   string `json:"status,omitempty"`
}

// GatewayClient talks to a Razorpay-compatible orders API with basic auth.
// Order creation is not idempotent and is never retried here.
type GatewayClient struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
	metrics   *telemetry.Metrics
}

func NewGatewayClient(baseURL, keyID, keySecret string, timeout time.Duration, metrics *telemetry.Metrics) *GatewayClient {
	return &GatewayClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		client:    newHTTPClient(timeout),
		metrics:   metrics,
	}
}

func (c *GatewayClient) CreateOrder(ctx context.Context, in GatewayOrderRequest) (_ *GatewayOrder, err error) {
	ctx, span := tracer.Start(ctx, "gateway.CreateOrder")
	defer func() { endSpan(span, err) }()
	defer c.metrics.ObserveUpstream(ctx, gatewayProvider, "create_order", time.Now())

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(gatewayProvider, "create order", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream(gatewayProvider, "read response", nil, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstream := apperr.Upstream(gatewayProvider, fmt.Sprintf("create order failed: status %d", resp.StatusCode), respBody, nil)
		upstream.WithDetail("status", resp.StatusCode)
		upstream.Retryable = resp.StatusCode >= 500
		return nil, upstream
	}

	var order GatewayOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, apperr.Upstream(gatewayProvider, "malformed response", respBody, err)
	}
	if order.ID == "" {
		return nil, apperr.Upstream(gatewayProvider, "response has no order id", respBody, nil)
	}
	return &order, nil
}

// transportError classifies a failed round trip. Timeouts are marked
// retryable so callers can tell them from outright rejections.
func transportError(provider, op string, err error) *apperr.Error {
	upstream := apperr.Upstream(provider, op+" failed", nil, err)
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		upstream.Message = provider + ": " + op + " timed out"
		upstream.Retryable = true
	}
	return upstream
}
