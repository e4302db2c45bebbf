// Package pesapal is a client for the Pesapal v3 REST API.
package pesapal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	SandboxBaseURL    = "https://cybqa.pesapal.com/pesapalv3"
	ProductionBaseURL = "https://pay.pesapal.com/v3"

	tokenPath  = "/api/Auth/RequestToken"
	submitPath = "/api/Transactions/SubmitOrderRequest"
	statusPath = "/api/Transactions/GetTransactionStatus"

	responseBodyReadLimit int64 = 8192
	tokenRefreshSkew            = 30 * time.Second
	defaultTokenTTL             = 5 * time.Minute
)

// Transaction status codes returned by GetTransactionStatus.
const (
	StatusInvalid   = 0
	StatusCompleted = 1
	StatusFailed    = 2
	StatusReversed  = 3
)

// Credentials are the per-restaurant Pesapal merchant settings.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	IPNID          string
	Environment    enums.GatewayEnvironment
}

func (c Credentials) complete() bool {
	return strings.TrimSpace(c.ConsumerKey) != "" && strings.TrimSpace(c.ConsumerSecret) != ""
}

// Client talks to one Pesapal merchant account.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the environment base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// WithClock overrides time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient validates credentials and builds a client for their environment.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if !creds.complete() {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "Pesapal credentials are not configured for this restaurant")
	}
	baseURL := SandboxBaseURL
	if creds.Environment.IsProduction() {
		baseURL = ProductionBaseURL
	}
	client := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		creds:      creds,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// apiError is the error object Pesapal embeds in otherwise 200 responses.
type apiError struct {
	ErrorType string `json:"error_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (e *apiError) present() bool {
	return e != nil && (e.Message != "" || e.Code != "")
}

func (e *apiError) toError(fallback string) error {
	msg := e.Message
	if msg == "" {
		msg = fallback
	}
	return pkgerrors.New(pkgerrors.CodeGateway, msg).WithDetails(map[string]any{"provider_code": e.Code})
}

// AccessToken returns a cached bearer token or requests a new one.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var out struct {
		Token      string    `json:"token"`
		ExpiryDate string    `json:"expiryDate"`
		Error      *apiError `json:"error"`
		Status     string    `json:"status"`
	}
	if err := c.post(ctx, tokenPath, "", map[string]string{
		"consumer_key":    c.creds.ConsumerKey,
		"consumer_secret": c.creds.ConsumerSecret,
	}, &out); err != nil {
		return "", err
	}
	if out.Error.present() {
		return "", out.Error.toError("Pesapal rejected the merchant credentials")
	}
	if out.Token == "" {
		return "", pkgerrors.New(pkgerrors.CodeGateway, "Pesapal rejected the merchant credentials")
	}

	expiry := c.now().Add(defaultTokenTTL)
	if parsed, err := time.Parse(time.RFC3339Nano, out.ExpiryDate); err == nil {
		expiry = parsed
	}
	c.token = out.Token
	c.tokenExpiry = expiry.Add(-tokenRefreshSkew)
	return c.token, nil
}

// BillingAddress identifies the paying customer.
type BillingAddress struct {
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
}

// OrderRequest is a SubmitOrderRequest payload.
type OrderRequest struct {
	ID             string
	Currency       string
	Amount         decimal.Decimal
	Description    string
	CallbackURL    string
	BillingAddress BillingAddress
}

// OrderResponse carries the tracking id and the hosted checkout URL.
type OrderResponse struct {
	OrderTrackingID   string `json:"order_tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	RedirectURL       string `json:"redirect_url"`
}

// SubmitOrder registers a payment and returns the redirect URL for the customer.
func (c *Client) SubmitOrder(ctx context.Context, in OrderRequest) (*OrderResponse, error) {
	if strings.TrimSpace(c.creds.IPNID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "Pesapal IPN is not registered for this restaurant")
	}
	if in.BillingAddress.EmailAddress == "" && in.BillingAddress.PhoneNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email or phone is required")
	}
	if !in.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	amount, _ := in.Amount.Round(2).Float64()
	payload := map[string]any{
		"id":              in.ID,
		"currency":        in.Currency,
		"amount":          amount,
		"description":     truncate(in.Description, 100),
		"callback_url":    in.CallbackURL,
		"notification_id": c.creds.IPNID,
		"billing_address": in.BillingAddress,
	}

	var out struct {
		OrderResponse
		Error  *apiError `json:"error"`
		Status string    `json:"status"`
	}
	if err := c.post(ctx, submitPath, token, payload, &out); err != nil {
		return nil, err
	}
	if out.Error.present() {
		return nil, out.Error.toError("Pesapal did not accept the order")
	}
	if out.OrderTrackingID == "" || out.RedirectURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "Pesapal did not return a checkout link")
	}
	return &out.OrderResponse, nil
}

// TransactionStatus is the GetTransactionStatus result.
type TransactionStatus struct {
	PaymentMethod            string  `json:"payment_method"`
	Amount                   float64 `json:"amount"`
	CreatedDate              string  `json:"created_date"`
	ConfirmationCode         string  `json:"confirmation_code"`
	PaymentStatusDescription string  `json:"payment_status_description"`
	Description              string  `json:"description"`
	Message                  string  `json:"message"`
	PaymentAccount           string  `json:"payment_account"`
	StatusCode               int     `json:"status_code"`
	MerchantReference        string  `json:"merchant_reference"`
	Currency                 string  `json:"currency"`
	Status                   string  `json:"status"`
}

// GetTransactionStatus fetches the payment state for a tracking id.
func (c *Client) GetTransactionStatus(ctx context.Context, trackingID string) (*TransactionStatus, error) {
	if strings.TrimSpace(trackingID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order tracking id is required")
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s%s?orderTrackingId=%s", c.baseURL, statusPath, url.QueryEscape(trackingID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build pesapal status request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	var out struct {
		TransactionStatus
		Error *apiError `json:"error"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.Error.present() && out.StatusCode != StatusInvalid {
		return nil, out.Error.toError("Pesapal status lookup failed")
	}
	return &out.TransactionStatus, nil
}

func (c *Client) post(ctx context.Context, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode pesapal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build pesapal request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Pesapal is unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read pesapal response")
	}
	if resp.StatusCode >= 500 {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d", resp.StatusCode), "Pesapal is unavailable")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode >= 400 {
			return pkgerrors.New(pkgerrors.CodeGateway, fmt.Sprintf("Pesapal request failed with status %d", resp.StatusCode))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode pesapal response")
	}
	return nil
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max]
}
