// Package mpesa is a client for the Safaricom Daraja STK Push APIs.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	SandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	ProductionBaseURL = "https://api.safaricom.co.ke"

	oauthPath = "/oauth/v1/generate?grant_type=client_credentials"
	stkPath   = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	timestampLayout = "20060102150405"
	transactionType = "CustomerPayBillOnline"

	// PendingErrorCode is returned by STK query while the customer has not yet
	// answered the prompt.
	PendingErrorCode = "500.001.1001"

	responseBodyReadLimit int64 = 4096
	tokenRefreshSkew            = time.Minute
)

// Result codes reported by STK query and callbacks.
const (
	ResultSuccess   = "0"
	ResultCancelled = "1032"
	ResultTimeout   = "1037"
)

// Credentials are the per-restaurant Daraja app settings.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	Environment    enums.GatewayEnvironment
}

func (c Credentials) complete() bool {
	return strings.TrimSpace(c.ConsumerKey) != "" &&
		strings.TrimSpace(c.ConsumerSecret) != "" &&
		strings.TrimSpace(c.Shortcode) != "" &&
		strings.TrimSpace(c.Passkey) != ""
}

// Client talks to one Daraja app. Access tokens are cached until shortly
// before expiry.
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

// WithClock overrides time.Now, used for the STK password timestamp.
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
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "M-Pesa credentials are not configured for this restaurant")
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

// Password builds the STK password: base64(shortcode + passkey + timestamp).
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

type apiError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// AccessToken returns a cached OAuth token or fetches a new one.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+oauthPath, nil)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build mpesa oauth request")
	}
	req.SetBasicAuth(c.creds.ConsumerKey, c.creds.ConsumerSecret)

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if _, err := c.do(req, &body); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeGateway, "M-Pesa rejected the app credentials")
	}

	ttl := time.Hour
	if secs, err := time.ParseDuration(body.ExpiresIn + "s"); err == nil && secs > tokenRefreshSkew {
		ttl = secs
	}
	c.token = body.AccessToken
	c.tokenExpiry = c.now().Add(ttl - tokenRefreshSkew)
	return c.token, nil
}

// STKPushRequest describes one payment prompt sent to a customer's phone.
type STKPushRequest struct {
	Amount           decimal.Decimal
	Phone            string
	CallbackURL      string
	AccountReference string
	Description      string
}

// STKPushResponse is Daraja's acknowledgement of an accepted prompt.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKPush sends the payment prompt. Amounts are rounded up to whole shillings.
func (c *Client) STKPush(ctx context.Context, in STKPushRequest) (*STKPushResponse, error) {
	phone := NormalizePhone(in.Phone)
	if !ValidPhone(phone) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid M-Pesa phone number is required")
	}
	amount := in.Amount.Ceil().IntPart()
	if amount < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be at least 1")
	}

	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := c.now().Format(timestampLayout)
	payload := map[string]any{
		"BusinessShortCode": c.creds.Shortcode,
		"Password":          Password(c.creds.Shortcode, c.creds.Passkey, ts),
		"Timestamp":         ts,
		"TransactionType":   transactionType,
		"Amount":            amount,
		"PartyA":            phone,
		"PartyB":            c.creds.Shortcode,
		"PhoneNumber":       phone,
		"CallBackURL":       in.CallbackURL,
		"AccountReference":  truncate(in.AccountReference, 12),
		"TransactionDesc":   truncate(in.Description, 13),
	}

	req, err := c.jsonRequest(ctx, stkPath, token, payload)
	if err != nil {
		return nil, err
	}
	var out STKPushResponse
	if _, err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		msg := out.ResponseDescription
		if msg == "" {
			msg = "M-Pesa did not accept the payment request"
		}
		return nil, pkgerrors.New(pkgerrors.CodeGateway, msg)
	}
	return &out, nil
}

// QueryResponse is the STK query result. ErrorCode is set instead of
// ResultCode while the transaction is still being processed.
type QueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
	ErrorCode           string `json:"errorCode,omitempty"`
	ErrorMessage        string `json:"errorMessage,omitempty"`
}

// Pending reports whether the prompt has not been answered yet.
func (q *QueryResponse) Pending() bool {
	return q.ErrorCode == PendingErrorCode
}

// Query asks Daraja for the outcome of a prompt.
func (c *Client) Query(ctx context.Context, checkoutRequestID string) (*QueryResponse, error) {
	if strings.TrimSpace(checkoutRequestID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout request id is required")
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := c.now().Format(timestampLayout)
	req, err := c.jsonRequest(ctx, queryPath, token, map[string]any{
		"BusinessShortCode": c.creds.Shortcode,
		"Password":          Password(c.creds.Shortcode, c.creds.Passkey, ts),
		"Timestamp":         ts,
		"CheckoutRequestID": checkoutRequestID,
	})
	if err != nil {
		return nil, err
	}

	var out QueryResponse
	apiErr, err := c.do(req, &out)
	if apiErr != nil && apiErr.ErrorCode == PendingErrorCode {
		return &QueryResponse{CheckoutRequestID: checkoutRequestID, ErrorCode: apiErr.ErrorCode, ErrorMessage: apiErr.ErrorMessage}, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) jsonRequest(ctx context.Context, path, token string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode mpesa request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build mpesa request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// do executes req and decodes a 2xx body into out. Non-2xx bodies are decoded
// as Daraja errors and returned alongside a typed error.
func (c *Client) do(req *http.Request, out any) (*apiError, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "M-Pesa is unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read mpesa response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if len(raw) > 0 && json.Unmarshal(raw, &apiErr) == nil && apiErr.ErrorMessage != "" {
			return &apiErr, pkgerrors.New(pkgerrors.CodeGateway, apiErr.ErrorMessage).
				WithDetails(map[string]any{"provider_code": apiErr.ErrorCode})
		}
		if resp.StatusCode >= 500 {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d", resp.StatusCode), "M-Pesa is unavailable")
		}
		return nil, pkgerrors.New(pkgerrors.CodeGateway, fmt.Sprintf("M-Pesa request failed with status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode mpesa response")
	}
	return nil, nil
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max]
}
