package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/storefront/internal/telemetry"
)

const carrierProvider = "carrier"

// CarrierToken is a bearer credential returned by the carrier login.
type CarrierToken struct {
	Value string
	// ExpiresIn is zero when the carrier does not say.
	ExpiresIn time.Duration
}

// CarrierStatusError is a non-2xx answer from the carrier API.
type CarrierStatusError struct {
	Op     string
	Status int
	Body   []byte
}

func (e *CarrierStatusError) Error() string {
	return fmt.Sprintf("carrier %s: status %d: %s", e.Op, e.Status, truncateBody(e.Body, 256))
}

// CarrierBooking is a successful booking.
type CarrierBooking struct {
	AWB         string
	CourierName string
	Raw         []byte
}

// CarrierClient talks to an XpressBees-style shipping API.
type CarrierClient struct {
	baseURL  string
	email    string
	password string
	timeout  time.Duration
	client   *http.Client
	metrics  *telemetry.Metrics
}

func NewCarrierClient(baseURL, email, password string, timeout time.Duration, metrics *telemetry.Metrics) *CarrierClient {
	return &CarrierClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		email:    email,
		password: password,
		timeout:  timeout,
		client:   newHTTPClient(0),
		metrics:  metrics,
	}
}

type carrierLoginResponse struct {
	Status    bool   `json:"status"`
	Data      string `json:"data"`
	ExpiresIn int    `json:"expires_in"`
	Message   string `json:"message"`
}

// Login exchanges the account credentials for a bearer token.
func (c *CarrierClient) Login(ctx context.Context) (CarrierToken, error) {
	defer c.metrics.ObserveUpstream(ctx, carrierProvider, "login", time.Now())

	status, body, err := c.post(ctx, "/api/users/login", "", map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return CarrierToken{}, err
	}
	if status < 200 || status >= 300 {
		return CarrierToken{}, &CarrierStatusError{Op: "login", Status: status, Body: body}
	}

	var resp carrierLoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return CarrierToken{}, fmt.Errorf("carrier login: decode response: %w", err)
	}
	if !resp.Status || resp.Data == "" {
		return CarrierToken{}, &CarrierStatusError{Op: "login", Status: http.StatusUnauthorized, Body: body}
	}
	return CarrierToken{
		Value:     resp.Data,
		ExpiresIn: time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

type carrierBookingResponse struct {
	Status  bool            `json:"status"`
	Message json.RawMessage `json:"message"`
	Data    struct {
		AWBNumber   string `json:"awb_number"`
		CourierName string `json:"courier_name"`
	} `json:"data"`
}

// Book submits one shipment. A 401 comes back as *CarrierStatusError so the
// caller can refresh its token; any answer without an AWB is an error
// carrying the raw body.
func (c *CarrierClient) Book(ctx context.Context, token string, payload BookingPayload) (*CarrierBooking, error) {
	defer c.metrics.ObserveUpstream(ctx, carrierProvider, "book", time.Now())

	status, body, err := c.post(ctx, "/api/shipments2", token, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &CarrierStatusError{Op: "book", Status: status, Body: body}
	}

	var resp carrierBookingResponse
	if err := json.Unmarshal(body, &resp); err != nil || !resp.Status || resp.Data.AWBNumber == "" {
		return nil, &CarrierStatusError{Op: "book", Status: status, Body: body}
	}
	return &CarrierBooking{
		AWB:         resp.Data.AWBNumber,
		CourierName: resp.Data.CourierName,
		Raw:         body,
	}, nil
}

func (c *CarrierClient) post(ctx context.Context, path, token string, payload any) (int, []byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("carrier: marshal %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("carrier: build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, transportError(carrierProvider, strings.TrimPrefix(path, "/api/"), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("carrier: read %s: %w", path, err)
	}
	return resp.StatusCode, body, nil
}

func truncateBody(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
