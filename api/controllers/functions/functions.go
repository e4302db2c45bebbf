// Package functions serves the /functions/v1 server functions. Every handler
// answers with the {success, data|error} envelope.
package functions

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/api/validators"
	"github.com/angelmondragon/tableside-backend/internal/orders"
	"github.com/angelmondragon/tableside-backend/internal/payments"
	"github.com/angelmondragon/tableside-backend/internal/reconcile"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/google/uuid"
)

type privilegedOrders interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ApplyPrivilegedUpdate(ctx context.Context, update orders.PrivilegedUpdate) (*models.Order, error)
}

type notifier interface {
	NotifyOrderStatus(ctx context.Context, order *models.Order) error
}

type initializeRequest struct {
	OrderID string  `json:"order_id" validate:"required,uuid"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,phone"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
}

type verifyRequest struct {
	Reference string `json:"reference" validate:"required"`
}

type updateOrderStatusRequest struct {
	OrderID       *string `json:"order_id,omitempty" validate:"omitempty,uuid"`
	Reference     string  `json:"reference"`
	PaymentStatus string  `json:"payment_status"`
	OrderStatus   string  `json:"order_status"`
}

type pushRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

// Initialize starts a gateway payment for an order.
func Initialize(svc payments.Service, method enums.PaymentMethod, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body initializeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteFunctionError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(body.OrderID)
		if err != nil {
			responses.WriteFunctionError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order_id must be a uuid"))
			return
		}
		result, err := svc.Initialize(r.Context(), method, payments.InitializeInput{
			OrderID: orderID,
			Phone:   body.Phone,
			Email:   body.Email,
		})
		if err != nil {
			responses.WriteFunctionError(r.Context(), logg, w, err)
			return
		}
		responses.WriteFunctionSuccess(w, result)
	}
}

// Verify asks the provider for the state of a reference.
func Verify(svc payments.Service, method enums.PaymentMethod, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body verifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteFunctionError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Verify(r.Context(), method, strings.TrimSpace(body.Reference))
		if err != nil {
			responses.WriteFunctionError(r.Context(), logg, w, err)
			return
		}
		responses.WriteFunctionSuccess(w, result)
	}
}

// UpdateOrderStatus is the privileged write used by reconcilers. The order
// is addressed by id or by gateway reference.
func UpdateOrderStatus(svc privilegedOrders, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteFunctionError(r.Context(), logg, w, err)
			return
		}
		update, err := reconcile.ParseStatusUpdate(reconcile.StatusUpdate{
			Reference:     strings.TrimSpace(body.Reference),
			PaymentStatus: body.PaymentStatus,
			OrderStatus:   body.OrderStatus,
		})
		if err != nil {
			responses.WriteFunctionError(r.Context(), logg, w, err)
			return
		}
		if body.OrderID != nil {
			id, err := uuid.Parse(*body.OrderID)
			if err != nil {
				responses.WriteFunctionError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order_id must be a uuid"))
				return
			}
			update.OrderID = &id
		}
		if update.OrderID == nil && update.Reference == "" {
			responses.WriteFunctionError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order_id or reference is required"))
			return
		}
		if update.PaymentStatus == nil && update.OrderStatus == nil {
			responses.WriteFunctionError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment_status or order_status is required"))
			return
		}
		order, err := svc.ApplyPrivilegedUpdate(r.Context(), update)
		if err != nil {
			responses.WriteFunctionError(r.Context(), logg, w, err)
			return
		}
		responses.WriteFunctionSuccess(w, orders.NewPublicOrder(order))
	}
}

// SendOrderStatusPush notifies the customer of the order's current status.
func SendOrderStatusPush(svc privilegedOrders, push notifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body pushRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteFunctionError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuid.Parse(body.OrderID)
		if err != nil {
			responses.WriteFunctionError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order_id must be a uuid"))
			return
		}
		order, err := svc.GetByID(r.Context(), orderID)
		if err != nil {
			responses.WriteFunctionError(r.Context(), logg, w, err)
			return
		}
		if err := push.NotifyOrderStatus(r.Context(), order); err != nil {
			responses.WriteFunctionError(r.Context(), logg, w, err)
			return
		}
		responses.WriteFunctionSuccess(w, map[string]any{"order_id": order.ID, "order_status": order.OrderStatus})
	}
}
