package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	MpesaWebhookPath    = "/api/v1/webhooks/mpesa"
	PaymentCallbackPath = "/payment/callback"
)

// OrderStore is the slice of the orders service payments needs.
type OrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByGatewayReference(ctx context.Context, reference string) (*models.Order, error)
	SetGatewayReference(ctx context.Context, id uuid.UUID, reference string) error
}

// CredentialStore loads a restaurant's gateway settings.
type CredentialStore interface {
	Credentials(ctx context.Context, restaurantID uuid.UUID) (*models.PaymentSettings, error)
}

type gatewayMetrics interface {
	ObserveGateway(provider, operation string, err error, duration time.Duration)
	IncVerification(provider, status string)
}

// InitializeInput names the order to pay. Phone and Email override the
// contact details captured at checkout.
type InitializeInput struct {
	OrderID uuid.UUID
	Phone   *string
	Email   *string
}

// Service implements the initialize and verify server functions.
type Service interface {
	Initialize(ctx context.Context, method enums.PaymentMethod, input InitializeInput) (*InitResult, error)
	Verify(ctx context.Context, method enums.PaymentMethod, reference string) (*VerifyResult, error)
}

// Deps wires the payments service.
type Deps struct {
	Orders      OrderStore
	Credentials CredentialStore
	Gateways    Factory
	Metrics     gatewayMetrics
	Logger      *logger.Logger
	Config      config.PaymentsConfig
	PublicURL   string
	Now         func() time.Time
}

type service struct {
	orders    OrderStore
	creds     CredentialStore
	gateways  Factory
	metrics   gatewayMetrics
	logg      *logger.Logger
	cfg       config.PaymentsConfig
	publicURL string
	now       func() time.Time
}

// NewService builds the payments service.
func NewService(deps Deps) (Service, error) {
	if deps.Orders == nil || deps.Credentials == nil || deps.Gateways == nil {
		return nil, fmt.Errorf("payments service requires orders, credentials and gateways")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		orders:    deps.Orders,
		creds:     deps.Credentials,
		gateways:  deps.Gateways,
		metrics:   deps.Metrics,
		logg:      deps.Logger,
		cfg:       deps.Config,
		publicURL: strings.TrimRight(deps.PublicURL, "/"),
		now:       now,
	}, nil
}

func (s *service) Initialize(ctx context.Context, method enums.PaymentMethod, input InitializeInput) (*InitResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}
	order, err := s.orders.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(order, method); err != nil {
		return nil, err
	}
	gw, err := s.gatewayFor(ctx, order, method)
	if err != nil {
		return nil, err
	}

	req := InitRequest{
		OrderID:      order.ID,
		Amount:       order.TotalAmount,
		Currency:     order.Currency,
		Phone:        pick(input.Phone, order.CustomerPhone),
		Email:        pick(input.Email, order.CustomerEmail),
		CustomerName: pick(nil, order.CustomerName),
		Description:  "Order " + shortID(order.ID),
	}
	if req.CallbackURL, err = s.callbackURL(method); err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":      order.ID.String(),
		"restaurant_id": order.RestaurantID.String(),
		"provider":      string(method),
	})
	start := s.now()
	result, err := gw.Initialize(ctx, req)
	s.observe(method, "initialize", err, start)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payments.initialize.failed")
		return nil, err
	}

	if err := s.orders.SetGatewayReference(ctx, order.ID, result.Reference); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "reference", result.Reference), "payments.initialize.pending")
	return result, nil
}

func (s *service) Verify(ctx context.Context, method enums.PaymentMethod, reference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	order, err := s.orders.GetByGatewayReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != method {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reference does not belong to a %s payment", method))
	}
	gw, err := s.gatewayFor(ctx, order, method)
	if err != nil {
		return nil, err
	}

	start := s.now()
	result, err := gw.Verify(ctx, reference)
	s.observe(method, "verify", err, start)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncVerification(string(method), string(result.Status))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":  order.ID.String(),
		"reference": reference,
		"status":    string(result.Status),
	}), "payments.verify.result")
	return result, nil
}

func (s *service) gatewayFor(ctx context.Context, order *models.Order, method enums.PaymentMethod) (Gateway, error) {
	settings, err := s.creds.Credentials(ctx, order.RestaurantID)
	if err != nil {
		return nil, err
	}
	return s.gateways.Gateway(method, settings)
}

func (s *service) callbackURL(method enums.PaymentMethod) (string, error) {
	switch method {
	case enums.PaymentMethodMpesa:
		base := strings.TrimRight(s.cfg.CallbackBaseURL, "/")
		if base == "" {
			base = s.publicURL
		}
		if base == "" {
			return "", pkgerrors.New(pkgerrors.CodeGateway, "payment callback URL is not configured")
		}
		target := base + MpesaWebhookPath
		if s.cfg.MpesaCallbackToken != "" {
			target += "?token=" + url.QueryEscape(s.cfg.MpesaCallbackToken)
		}
		return target, nil
	case enums.PaymentMethodPesapal:
		target := strings.TrimSpace(s.cfg.ReturnURL)
		if target == "" {
			if s.publicURL == "" {
				return "", pkgerrors.New(pkgerrors.CodeGateway, "payment return URL is not configured")
			}
			target = s.publicURL + PaymentCallbackPath
		}
		parsed, err := url.Parse(target)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse payment return URL")
		}
		q := parsed.Query()
		q.Set("provider", string(enums.PaymentMethodPesapal))
		parsed.RawQuery = q.Encode()
		return parsed.String(), nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not an online payment method", method))
}

func (s *service) observe(method enums.PaymentMethod, operation string, err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveGateway(string(method), operation, err, s.now().Sub(start))
	}
}

func checkPayable(order *models.Order, method enums.PaymentMethod) error {
	if !method.IsGateway() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s is not an online payment method", method))
	}
	if order.PaymentMethod != method {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order was placed for %s payment", order.PaymentMethod))
	}
	if order.PaymentStatus == enums.PaymentStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}
	if order.OrderStatus == enums.OrderStatusCancelled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order was cancelled")
	}
	return nil
}

func pick(override, fallback *string) string {
	if override != nil && strings.TrimSpace(*override) != "" {
		return strings.TrimSpace(*override)
	}
	if fallback != nil {
		return strings.TrimSpace(*fallback)
	}
	return ""
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}
