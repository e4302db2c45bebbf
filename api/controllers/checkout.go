package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/tableside-backend/api/middleware"
	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/api/validators"
	"github.com/angelmondragon/tableside-backend/internal/checkout"
	"github.com/angelmondragon/tableside-backend/internal/orders"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type checkoutRequest struct {
	OrderType     string     `json:"order_type" validate:"required,oneof=now later"`
	PaymentMethod string     `json:"payment_method" validate:"required,oneof=mpesa pesapal cash"`
	TableNumber   *string    `json:"table_number,omitempty" validate:"omitempty,max=20"`
	CustomerName  *string    `json:"customer_name,omitempty" validate:"omitempty,max=120"`
	CustomerPhone *string    `json:"customer_phone,omitempty" validate:"omitempty,phone"`
	CustomerEmail *string    `json:"customer_email,omitempty" validate:"omitempty,email"`
	ScheduledFor  *time.Time `json:"scheduled_for,omitempty"`
}

type checkoutResponse struct {
	Order         orders.PublicOrder `json:"order"`
	CustomerToken string             `json:"customer_token"`
}

// Checkout converts the session cart into an order.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := middleware.CartSessionFromContext(r.Context())
		restaurantID, err := validators.ParseUUIDParam(r, "restaurantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderType, err := enums.ParseOrderType(body.OrderType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}
		method, err := enums.ParsePaymentMethod(body.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}

		order, err := svc.Execute(r.Context(), session, restaurantID, checkout.Input{
			OrderType:     orderType,
			PaymentMethod: method,
			TableNumber:   validators.SanitizeOptional(body.TableNumber, 20),
			CustomerName:  validators.SanitizeOptional(body.CustomerName, 120),
			CustomerPhone: validators.SanitizeOptional(body.CustomerPhone, 20),
			CustomerEmail: validators.SanitizeOptional(body.CustomerEmail, 254),
			ScheduledFor:  body.ScheduledFor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Order:         orders.NewPublicOrder(order),
			CustomerToken: order.CustomerToken,
		})
	}
}

type orderLookup interface {
	GetByCustomerToken(ctx context.Context, token string) (*models.Order, error)
}

// TrackOrder returns the public view of an order by its customer token.
func TrackOrder(svc orderLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(chi.URLParam(r, "customerToken"))
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "customer token is required"))
			return
		}
		order, err := svc.GetByCustomerToken(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewPublicOrder(order))
	}
}
