package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/api/validators"
	"github.com/angelmondragon/tableside-backend/internal/reconcile"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

type callbackRetryRequest struct {
	Provider  string `json:"provider" validate:"required,oneof=mpesa pesapal"`
	Reference string `json:"reference" validate:"required"`
}

// ReconcilerParams wires the callback page endpoints. Each request gets its
// own reconciler since nothing is kept between page loads.
type ReconcilerParams struct {
	Verifier      reconcile.Verifier
	Updater       reconcile.OrderUpdater
	VerifyTimeout time.Duration
	Logger        *logger.Logger
}

func (p ReconcilerParams) build() (*reconcile.Reconciler, error) {
	return reconcile.New(p.Verifier, p.Updater, reconcile.Options{VerifyTimeout: p.VerifyTimeout, Logger: p.Logger})
}

// PaymentCallback runs the reconciler for the provider and reference the
// customer was redirected back with.
func PaymentCallback(params ReconcilerParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		provider, reference, err := callbackTarget(query.Get("provider"), firstNonEmpty(
			query.Get("reference"),
			query.Get("OrderTrackingId"),
			query.Get("checkout_request_id"),
		))
		if err != nil {
			responses.WriteError(r.Context(), params.Logger, w, err)
			return
		}
		reconciler, err := params.build()
		if err != nil {
			responses.WriteError(r.Context(), params.Logger, w, err)
			return
		}
		responses.WriteSuccess(w, reconciler.Reconcile(r.Context(), provider, reference))
	}
}

// PaymentCallbackRetry is the manual retry button of the callback page.
func PaymentCallbackRetry(params ReconcilerParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body callbackRetryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), params.Logger, w, err)
			return
		}
		provider, reference, err := callbackTarget(body.Provider, body.Reference)
		if err != nil {
			responses.WriteError(r.Context(), params.Logger, w, err)
			return
		}
		reconciler, err := params.build()
		if err != nil {
			responses.WriteError(r.Context(), params.Logger, w, err)
			return
		}
		responses.WriteSuccess(w, reconciler.Reconcile(r.Context(), provider, reference))
	}
}

func callbackTarget(rawProvider, rawReference string) (enums.PaymentMethod, string, error) {
	provider, err := enums.ParsePaymentMethod(rawProvider)
	if err != nil || !provider.IsGateway() {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "provider must be mpesa or pesapal")
	}
	reference := strings.TrimSpace(rawReference)
	if reference == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	return provider, reference, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
