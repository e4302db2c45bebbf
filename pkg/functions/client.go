// Package functions calls the server functions of a running tableside API
// over HTTP. It lets out-of-process tools reconcile payments with the same
// verify and update-order-status endpoints the storefront uses.
package functions

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

	"github.com/angelmondragon/tableside-backend/internal/payments"
	"github.com/angelmondragon/tableside-backend/internal/reconcile"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
)

const (
	// BasePath prefixes every server function route.
	BasePath = "/functions/v1"

	// ServiceKeyHeader authenticates privileged function calls.
	ServiceKeyHeader = "X-Service-Key"

	responseBodyReadLimit int64 = 1 << 20
)

var errBaseURLRequired = errors.New("functions base url is required")

// Client calls the server functions.
type Client struct {
	httpClient *http.Client
	baseURL    string
	serviceKey string
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

// WithServiceKey sets the key sent on privileged calls.
func WithServiceKey(key string) Option {
	return func(c *Client) {
		c.serviceKey = strings.TrimSpace(key)
	}
}

// NewClient builds a client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: 45 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type verifyRequest struct {
	Reference string `json:"reference"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// Verify calls mpesa-verify or pesapal-verify for reference.
func (c *Client) Verify(ctx context.Context, provider enums.PaymentMethod, reference string) (*payments.VerifyResult, error) {
	var name string
	switch provider {
	case enums.PaymentMethodMpesa:
		name = "mpesa-verify"
	case enums.PaymentMethodPesapal:
		name = "pesapal-verify"
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment provider %q", provider))
	}
	var result payments.VerifyResult
	if err := c.call(ctx, name, verifyRequest{Reference: reference}, false, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateOrderStatus calls the privileged update-order-status function.
func (c *Client) UpdateOrderStatus(ctx context.Context, update reconcile.StatusUpdate) error {
	return c.call(ctx, "update-order-status", update, true, nil)
}

func (c *Client) call(ctx context.Context, name string, body any, privileged bool, out any) error {
	if privileged && c.serviceKey == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "service key is required for "+name)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+name+" request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+BasePath+"/"+name, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+name+" request")
	}
	req.Header.Set("Content-Type", "application/json")
	if privileged {
		req.Header.Set(ServiceKeyHeader, c.serviceKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+name+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read "+name+" response")
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), name+" returned an unreadable response")
	}
	if !env.Success {
		code := pkgerrors.Code(env.Code)
		if env.Code == "" {
			code = pkgerrors.CodeDependency
		}
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("%s failed with status %d", name, resp.StatusCode)
		}
		return pkgerrors.New(code, msg)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+name+" response")
	}
	return nil
}
