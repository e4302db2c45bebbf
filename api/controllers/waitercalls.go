package controllers

import (
	"net/http"

	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/api/validators"
	"github.com/angelmondragon/tableside-backend/internal/waitercalls"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

type createWaiterCallRequest struct {
	TableNumber string  `json:"table_number" validate:"required,max=20"`
	Notes       *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type waiterCallStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// WaiterCallCreate lets a table ask for staff.
func WaiterCallCreate(svc waitercalls.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		restaurantID, err := validators.ParseUUIDParam(r, "restaurantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createWaiterCallRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		call, err := svc.CreateCall(r.Context(), restaurantID,
			validators.SanitizeString(body.TableNumber, 20), validators.SanitizeOptional(body.Notes, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, call)
	}
}

// WaiterCallList is the staff queue for one restaurant.
func WaiterCallList(svc waitercalls.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, restaurantID, err := ownerAndRestaurant(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		includeCompleted, err := validators.ParseQueryBool(r, "include_completed")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		calls, err := svc.ListCalls(r.Context(), ownerID, restaurantID, includeCompleted)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, calls)
	}
}

// WaiterCallUpdateStatus acknowledges or completes a call.
func WaiterCallUpdateStatus(svc waitercalls.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		callID, err := validators.ParseUUIDParam(r, "callId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body waiterCallStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseWaiterCallStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}
		call, err := svc.UpdateStatus(r.Context(), ownerID, callID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, call)
	}
}
