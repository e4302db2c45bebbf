// Package payments adapts the M-Pesa and Pesapal clients to one gateway
// contract and implements the initialize and verify server functions.
package payments

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/mpesa"
	"github.com/angelmondragon/tableside-backend/pkg/pesapal"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VerifyStatus is a gateway's view of one transaction.
type VerifyStatus string

const (
	VerifyCompleted VerifyStatus = "completed"
	VerifyFailed    VerifyStatus = "failed"
	VerifyPending   VerifyStatus = "pending"
	VerifyCancelled VerifyStatus = "cancelled"
	VerifyTimeout   VerifyStatus = "timeout"
)

// Final reports whether the status will not change on a later verify.
func (s VerifyStatus) Final() bool {
	return s == VerifyCompleted || s == VerifyFailed || s == VerifyCancelled
}

// PaymentStatus maps a final outcome onto the order's payment status.
func (s VerifyStatus) PaymentStatus() (enums.PaymentStatus, bool) {
	switch s {
	case VerifyCompleted:
		return enums.PaymentStatusCompleted, true
	case VerifyFailed, VerifyCancelled:
		return enums.PaymentStatusFailed, true
	}
	return "", false
}

// InitRequest starts a payment for one order.
type InitRequest struct {
	OrderID      uuid.UUID
	Amount       decimal.Decimal
	Currency     string
	Phone        string
	Email        string
	CustomerName string
	Description  string
	CallbackURL  string
}

// InitResult is always pending: the outcome arrives later through verify or a webhook.
type InitResult struct {
	Reference       string       `json:"reference"`
	Status          VerifyStatus `json:"status"`
	RedirectURL     string       `json:"redirect_url,omitempty"`
	CustomerMessage string       `json:"customer_message,omitempty"`
}

// VerifyResult carries the provider's answer for a reference.
type VerifyResult struct {
	Reference     string       `json:"reference"`
	Status        VerifyStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	ReceiptNumber string       `json:"receipt_number,omitempty"`
}

// Gateway is one provider. Gateways never touch orders.
type Gateway interface {
	Provider() enums.PaymentMethod
	Initialize(ctx context.Context, req InitRequest) (*InitResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

// Factory builds a gateway from a restaurant's stored credentials.
type Factory interface {
	Gateway(method enums.PaymentMethod, settings *models.PaymentSettings) (Gateway, error)
}

// ClientFactory builds real provider clients and reuses them while a
// restaurant's settings are unchanged, so access tokens stay cached.
type ClientFactory struct {
	HTTPClient     *http.Client
	MpesaBaseURL   string
	PesapalBaseURL string

	mu    sync.Mutex
	cache map[string]cachedGateway
}

// cachedGateway remembers which settings revision built gw.
type cachedGateway struct {
	gw       Gateway
	revision time.Time
}

// NewClientFactory builds a factory sharing one HTTP client.
func NewClientFactory(httpClient *http.Client) *ClientFactory {
	return &ClientFactory{HTTPClient: httpClient, cache: map[string]cachedGateway{}}
}

func (f *ClientFactory) Gateway(method enums.PaymentMethod, settings *models.PaymentSettings) (Gateway, error) {
	if settings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "payment settings are not configured for this restaurant")
	}
	// One entry per restaurant and method; a credential edit replaces it.
	key := fmt.Sprintf("%s:%s", method, settings.RestaurantID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cache == nil {
		f.cache = map[string]cachedGateway{}
	}
	if hit, ok := f.cache[key]; ok && hit.revision.Equal(settings.UpdatedAt) {
		return hit.gw, nil
	}

	var (
		gw  Gateway
		err error
	)
	switch method {
	case enums.PaymentMethodMpesa:
		var client *mpesa.Client
		client, err = mpesa.NewClient(mpesa.Credentials{
			ConsumerKey:    settings.MpesaConsumerKey,
			ConsumerSecret: settings.MpesaConsumerSecret,
			Shortcode:      settings.MpesaShortcode,
			Passkey:        settings.MpesaPasskey,
			Environment:    settings.MpesaEnvironment,
		}, mpesa.WithHTTPClient(f.HTTPClient), mpesa.WithBaseURL(f.MpesaBaseURL))
		if err == nil {
			gw = NewMpesaGateway(client)
		}
	case enums.PaymentMethodPesapal:
		var client *pesapal.Client
		client, err = pesapal.NewClient(pesapal.Credentials{
			ConsumerKey:    settings.PesapalConsumerKey,
			ConsumerSecret: settings.PesapalConsumerSecret,
			IPNID:          settings.PesapalIPNID,
			Environment:    settings.PesapalEnvironment,
		}, pesapal.WithHTTPClient(f.HTTPClient), pesapal.WithBaseURL(f.PesapalBaseURL))
		if err == nil {
			gw = NewPesapalGateway(client)
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not an online payment method", method))
	}
	if err != nil {
		return nil, err
	}
	f.cache[key] = cachedGateway{gw: gw, revision: settings.UpdatedAt}
	return gw, nil
}
