package cart

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/tableside-backend/api/middleware"
	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/api/validators"
	cartsvc "github.com/angelmondragon/tableside-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type addItemRequest struct {
	MenuItemID          uuid.UUID `json:"menu_item_id" validate:"required"`
	Customizations      *string   `json:"customizations,omitempty" validate:"omitempty,max=500"`
	SpecialInstructions *string   `json:"special_instructions,omitempty" validate:"omitempty,max=500"`
}

type updateItemRequest struct {
	Quantity       int     `json:"quantity" validate:"gte=0,max=99"`
	Customizations *string `json:"customizations,omitempty" validate:"omitempty,max=500"`
}

// CartFetch returns the session's cart for one restaurant.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, restaurantID, err := scope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), session, restaurantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartAddItem adds one unit of a menu item, merging with an identical line.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, restaurantID, err := scope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body addItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.MenuItemID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "menu_item_id is required"))
			return
		}
		view, err := svc.AddItem(r.Context(), session, restaurantID, cartsvc.AddItemInput{
			MenuItemID:          body.MenuItemID,
			Customizations:      body.Customizations,
			SpecialInstructions: body.SpecialInstructions,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartUpdateItem sets a line's quantity; zero removes it.
func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, restaurantID, err := scope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.UpdateItem(r.Context(), session, restaurantID, cartsvc.UpdateItemInput{
			ItemID:         chi.URLParam(r, "itemId"),
			Quantity:       body.Quantity,
			Customizations: body.Customizations,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartRemoveItem drops one line, selected by item id and customizations.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, restaurantID, err := scope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var customizations *string
		if raw := strings.TrimSpace(r.URL.Query().Get("customizations")); raw != "" {
			customizations = &raw
		}
		view, err := svc.RemoveItem(r.Context(), session, restaurantID, chi.URLParam(r, "itemId"), customizations)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartClear empties the cart and deletes its stored copy.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, restaurantID, err := scope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Clear(r.Context(), session, restaurantID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cleared"})
	}
}

func scope(r *http.Request) (string, uuid.UUID, error) {
	session := middleware.CartSessionFromContext(r.Context())
	if session == "" {
		return "", uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, middleware.CartSessionHeader+" header required")
	}
	restaurantID, err := validators.ParseUUIDParam(r, "restaurantId")
	if err != nil {
		return "", uuid.Nil, err
	}
	return session, restaurantID, nil
}
