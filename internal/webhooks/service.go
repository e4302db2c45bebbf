// Package webhooks applies provider-side payment notifications to orders.
package webhooks

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/orders"
	"github.com/angelmondragon/tableside-backend/internal/payments"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/mpesa"
	"github.com/angelmondragon/tableside-backend/pkg/pesapal"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Webhook outcomes, also used as metric labels.
const (
	OutcomeApplied          = "applied"
	OutcomeDuplicate        = "duplicate"
	OutcomePending          = "pending"
	OutcomeUnknownReference = "unknown_reference"
	OutcomeRejected         = "rejected"
	OutcomeError            = "error"
)

type orderUpdater interface {
	GetByGatewayReference(ctx context.Context, reference string) (*models.Order, error)
	ApplyPrivilegedUpdate(ctx context.Context, update orders.PrivilegedUpdate) (*models.Order, error)
}

type verifier interface {
	Verify(ctx context.Context, method enums.PaymentMethod, reference string) (*payments.VerifyResult, error)
}

type guard interface {
	CheckAndMark(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

type webhookMetrics interface {
	IncWebhook(provider, outcome string)
}

// Service handles M-Pesa STK callbacks and Pesapal IPNs.
type Service struct {
	callbacks CallbackRepository
	orders    orderUpdater
	verifier  verifier
	guard     guard
	metrics   webhookMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// ServiceParams wires the webhook service. Metrics is optional.
type ServiceParams struct {
	Callbacks CallbackRepository
	Orders    orderUpdater
	Verifier  verifier
	Guard     guard
	Metrics   webhookMetrics
	Logger    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Callbacks == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "callback repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment verifier required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		callbacks: params.Callbacks,
		orders:    params.Orders,
		verifier:  params.Verifier,
		guard:     params.Guard,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// HandleMpesaCallback logs the STK callback and applies its result. A
// success is applied only once the amount covers the order total and an STK
// query agrees.
func (s *Service) HandleMpesaCallback(ctx context.Context, envelope mpesa.CallbackEnvelope, raw map[string]any) (string, error) {
	cb := envelope.Body.STKCallback
	reference := strings.TrimSpace(cb.CheckoutRequestID)
	if reference == "" {
		return s.done(enums.PaymentMethodMpesa, OutcomeError, pkgerrors.New(pkgerrors.CodeValidation, "CheckoutRequestID is required"))
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"provider": "mpesa", "reference": reference, "result_code": cb.ResultCode})

	details := cb.Details()
	record := &models.PaymentCallback{
		ID:         uuid.New(),
		Provider:   enums.PaymentMethodMpesa,
		Reference:  reference,
		ResultCode: cb.ResultCodeString(),
		ResultDesc: cb.ResultDesc,
		Amount:     details.Amount,
		Payload:    raw,
		ReceivedAt: s.now().UTC(),
	}
	if details.ReceiptNumber != "" {
		record.ReceiptNumber = &details.ReceiptNumber
	}
	if details.PhoneNumber != "" {
		record.PhoneNumber = &details.PhoneNumber
	}
	if err := s.callbacks.Create(ctx, record); err != nil {
		return s.done(enums.PaymentMethodMpesa, OutcomeError, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "log payment callback"))
	}

	status := payments.MpesaResultStatus(cb.ResultCodeString())
	if status == payments.VerifyTimeout {
		// The prompt expired unanswered; the callback is the last word on it.
		status = payments.VerifyFailed
	}
	if status == payments.VerifyCompleted {
		if outcome, err := s.confirmMpesaSuccess(ctx, reference, details.Amount); outcome != "" {
			return s.done(enums.PaymentMethodMpesa, outcome, err)
		}
	}
	outcome, err := s.apply(ctx, enums.PaymentMethodMpesa, reference, status)
	return s.done(enums.PaymentMethodMpesa, outcome, err)
}

// confirmMpesaSuccess checks a success callback against the order total and
// an STK query before anything is written. The callback URL is public, so the
// body alone never marks an order paid. An empty outcome means confirmed.
func (s *Service) confirmMpesaSuccess(ctx context.Context, reference string, amount *decimal.Decimal) (string, error) {
	order, err := s.orders.GetByGatewayReference(ctx, reference)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(ctx, "webhook.unknown_reference")
			return OutcomeUnknownReference, nil
		}
		return OutcomeError, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if amount == nil || amount.LessThan(order.TotalAmount) {
		paid := "missing"
		if amount != nil {
			paid = amount.StringFixed(2)
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"callback_amount": paid,
			"order_total":     order.TotalAmount.StringFixed(2),
		}), "webhook.amount_mismatch")
		return OutcomeRejected, nil
	}

	result, err := s.verifier.Verify(ctx, enums.PaymentMethodMpesa, reference)
	if err != nil {
		return OutcomeError, err
	}
	if result == nil || result.Status != payments.VerifyCompleted {
		verified := "none"
		if result != nil {
			verified = string(result.Status)
		}
		s.logg.Warn(s.logg.WithField(ctx, "verified_status", verified), "webhook.unverified_success")
		return OutcomeRejected, nil
	}
	return "", nil
}

// HandlePesapalIPN asks Pesapal for the transaction status named by the IPN
// and applies it. The acknowledgement status tells Pesapal whether to retry.
func (s *Service) HandlePesapalIPN(ctx context.Context, notification pesapal.Notification) (pesapal.Acknowledgement, error) {
	reference := strings.TrimSpace(notification.OrderTrackingID)
	if reference == "" {
		_, err := s.done(enums.PaymentMethodPesapal, OutcomeError, pkgerrors.New(pkgerrors.CodeValidation, "OrderTrackingId is required"))
		return notification.Ack(500), err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"provider": "pesapal", "reference": reference})

	result, err := s.verifier.Verify(ctx, enums.PaymentMethodPesapal, reference)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(ctx, "webhook.unknown_reference")
			_, _ = s.done(enums.PaymentMethodPesapal, OutcomeUnknownReference, nil)
			return notification.Ack(200), nil
		}
		_, err = s.done(enums.PaymentMethodPesapal, OutcomeError, err)
		return notification.Ack(500), err
	}

	record := &models.PaymentCallback{
		ID:         uuid.New(),
		Provider:   enums.PaymentMethodPesapal,
		Reference:  reference,
		ResultCode: string(result.Status),
		ResultDesc: result.Reason,
		Payload: map[string]any{
			"OrderTrackingId":        notification.OrderTrackingID,
			"OrderMerchantReference": notification.OrderMerchantReference,
			"OrderNotificationType":  notification.OrderNotificationType,
		},
		ReceivedAt: s.now().UTC(),
	}
	if result.ReceiptNumber != "" {
		record.ReceiptNumber = &result.ReceiptNumber
	}
	if err := s.callbacks.Create(ctx, record); err != nil {
		_, err = s.done(enums.PaymentMethodPesapal, OutcomeError, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "log payment callback"))
		return notification.Ack(500), err
	}

	outcome, err := s.apply(ctx, enums.PaymentMethodPesapal, reference, result.Status)
	if _, err = s.done(enums.PaymentMethodPesapal, outcome, err); err != nil {
		return notification.Ack(500), err
	}
	return notification.Ack(200), nil
}

// apply merges a final status into the order once per (reference, status).
func (s *Service) apply(ctx context.Context, provider enums.PaymentMethod, reference string, status payments.VerifyStatus) (string, error) {
	if !status.Final() {
		s.logg.Info(ctx, "webhook.pending")
		return OutcomePending, nil
	}

	key := dedupeKey(provider, reference, status)
	seen, err := s.guard.CheckAndMark(ctx, key)
	if err != nil {
		return OutcomeError, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if seen {
		s.logg.Info(ctx, "webhook.duplicate")
		return OutcomeDuplicate, nil
	}

	paymentStatus, _ := status.PaymentStatus()
	update := orders.PrivilegedUpdate{Reference: reference, PaymentStatus: &paymentStatus}
	if paymentStatus == enums.PaymentStatusCompleted {
		confirmed := enums.OrderStatusConfirmed
		update.OrderStatus = &confirmed
	}
	order, err := s.orders.ApplyPrivilegedUpdate(ctx, update)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(ctx, "webhook.unknown_reference")
			return OutcomeUnknownReference, nil
		}
		if delErr := s.guard.Delete(ctx, key); delErr != nil {
			s.logg.Error(ctx, "webhook.idempotency_release_failed", delErr)
		}
		return OutcomeError, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID.String(),
		"payment_status": order.PaymentStatus,
		"order_status":   order.OrderStatus,
	}), "webhook.applied")
	return OutcomeApplied, nil
}

func (s *Service) done(provider enums.PaymentMethod, outcome string, err error) (string, error) {
	if s.metrics != nil {
		s.metrics.IncWebhook(string(provider), outcome)
	}
	return outcome, err
}

// TokenMatches checks the shared token carried on the M-Pesa callback URL.
// An empty expected token disables the check.
func TokenMatches(expected, got string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
