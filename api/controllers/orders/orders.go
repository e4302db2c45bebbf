package orders

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/tableside-backend/api/middleware"
	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/api/validators"
	internalorders "github.com/angelmondragon/tableside-backend/internal/orders"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/google/uuid"
)

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type tableRequest struct {
	TableNumber *string `json:"table_number" validate:"omitempty,max=20"`
}

// List returns every order of the signed-in owner, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := middleware.OwnerIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing"))
			return
		}
		list, err := svc.FetchOrders(r.Context(), ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// UpdateStatus moves an order along the kitchen workflow.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, orderID, err := target(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body statusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}
		order, err := svc.UpdateOrderStatus(r.Context(), ownerID, orderID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// MarkPaid records an offline payment, typically cash at the counter.
func MarkPaid(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, orderID, err := target(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.MarkOrderPaid(r.Context(), ownerID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// UpdateTable assigns or clears the order's table.
func UpdateTable(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, orderID, err := target(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body tableRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.TableNumber != nil && strings.TrimSpace(*body.TableNumber) == "" {
			body.TableNumber = nil
		}
		order, err := svc.UpdateTableNumber(r.Context(), ownerID, orderID, body.TableNumber)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func target(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "owner context missing")
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return ownerID, orderID, nil
}
