package controllers

import (
	"net/http"

	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/api/validators"
	"github.com/angelmondragon/tableside-backend/internal/menu"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type menuItemRequest struct {
	Name        string          `json:"name" validate:"required,max=120"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=1000"`
	Category    *string         `json:"category,omitempty" validate:"omitempty,max=60"`
	Price       decimal.Decimal `json:"price"`
	Available   *bool           `json:"available,omitempty"`
}

type menuItemPatchRequest struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,max=120"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=1000"`
	Category    *string          `json:"category,omitempty" validate:"omitempty,max=60"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Available   *bool            `json:"available,omitempty"`
}

// MenuOwnerList lists every item of an owned restaurant, unavailable ones included.
func MenuOwnerList(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, restaurantID, err := ownerAndRestaurant(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.ListForOwner(r.Context(), ownerID, restaurantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func MenuCreate(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, restaurantID, err := ownerAndRestaurant(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body menuItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Create(r.Context(), ownerID, restaurantID, menu.ItemInput{
			Name:        body.Name,
			Description: body.Description,
			Category:    body.Category,
			Price:       body.Price,
			Available:   body.Available,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func MenuUpdate(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, restaurantID, err := ownerAndRestaurant(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body menuItemPatchRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Update(r.Context(), ownerID, restaurantID, itemID, menu.ItemPatch{
			Name:        body.Name,
			Description: body.Description,
			Category:    body.Category,
			Price:       body.Price,
			Available:   body.Available,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func MenuDelete(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, restaurantID, err := ownerAndRestaurant(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), ownerID, restaurantID, itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func ownerAndRestaurant(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	ownerID, err := ownerFromRequest(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	restaurantID, err := validators.ParseUUIDParam(r, "restaurantId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return ownerID, restaurantID, nil
}
