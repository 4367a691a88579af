// Package gateway talks to the hosted payment gateway: it opens payment
// sessions for pending orders and decodes the settlement webhooks it sends back.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/eventreg-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
)

const (
	sessionsPath     = "/v1/payment-sessions"
	defaultTimeout   = 10 * time.Second
	maxErrorBodySize = 4 << 10
)

var (
	errBaseURLRequired = errors.New("gateway base url is required")
	errAPIKeyRequired  = errors.New("gateway api key is required")
)

// SessionRequest is the body of a payment-session creation call.
// Amount is expressed in major currency units.
type SessionRequest struct {
	Amount              decimal.Decimal   `json:"amount"`
	Currency            string            `json:"currency"`
	PaymentMethods      []string          `json:"payment_methods"`
	ExternalOrderNumber string            `json:"external_order_number"`
	ReturnURL           string            `json:"return_url"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// Session is the hosted checkout the buyer is redirected to.
type Session struct {
	ID  string `json:"session_id"`
	URL string `json:"session_url"`
}

// Client is a thin JSON client for the gateway REST API.
type Client struct {
	baseURL    string
	apiKey     string
	returnURL  string
	currency   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient validates cfg and builds a client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg config.GatewayConfig, httpClient *http.Client) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		returnURL:  cfg.ReturnURL,
		currency:   strings.ToUpper(cfg.Currency),
		timeout:    timeout,
		httpClient: httpClient,
	}, nil
}

func (c *Client) Currency() string       { return c.currency }
func (c *Client) ReturnURL() string      { return c.returnURL }
func (c *Client) Timeout() time.Duration { return c.timeout }

// CreatePaymentSession opens a hosted session. The call is bounded by the
// configured timeout in addition to any deadline already on ctx; every
// failure is reported as CodeGatewayUnavailable.
func (c *Client) CreatePaymentSession(ctx context.Context, req SessionRequest) (*Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payment session request")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+sessionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build payment session request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.ExternalOrderNumber)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "payment session request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, fmt.Sprintf("gateway responded %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "decode payment session response")
	}
	if session.ID == "" || session.URL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "gateway returned an incomplete payment session")
	}
	return &session, nil
}
