package controllers

import (
	"net/http"

	"github.com/angelmondragon/tableside-backend/api/responses"
	"github.com/angelmondragon/tableside-backend/api/validators"
	"github.com/angelmondragon/tableside-backend/internal/menu"
	"github.com/angelmondragon/tableside-backend/internal/restaurants"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type createRestaurantRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Slug     string `json:"slug,omitempty" validate:"omitempty,max=80"`
	Currency string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type paymentSettingsRequest struct {
	MpesaConsumerKey      *string `json:"mpesa_consumer_key,omitempty"`
	MpesaConsumerSecret   *string `json:"mpesa_consumer_secret,omitempty"`
	MpesaShortcode        *string `json:"mpesa_shortcode,omitempty" validate:"omitempty,numeric"`
	MpesaPasskey          *string `json:"mpesa_passkey,omitempty"`
	MpesaEnvironment      *string `json:"mpesa_environment,omitempty" validate:"omitempty,oneof=sandbox production"`
	PesapalConsumerKey    *string `json:"pesapal_consumer_key,omitempty"`
	PesapalConsumerSecret *string `json:"pesapal_consumer_secret,omitempty"`
	PesapalIPNID          *string `json:"pesapal_ipn_id,omitempty"`
	PesapalEnvironment    *string `json:"pesapal_environment,omitempty" validate:"omitempty,oneof=sandbox production"`
}

type publicRestaurantResponse struct {
	Restaurant *models.Restaurant `json:"restaurant"`
	Menu       []models.MenuItem  `json:"menu"`
}

// RestaurantCreate registers a restaurant for the signed-in owner.
func RestaurantCreate(svc restaurants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createRestaurantRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		restaurant, err := svc.Create(r.Context(), ownerID, restaurants.CreateInput{
			Name:     body.Name,
			Slug:     body.Slug,
			Currency: body.Currency,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, restaurant)
	}
}

// RestaurantList returns the owner's restaurants.
func RestaurantList(svc restaurants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListForOwner(r.Context(), ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// RestaurantPublic resolves a restaurant by id or slug with its orderable menu,
// which is what a scanned table QR code opens.
func RestaurantPublic(svc restaurants.Service, menuSvc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		restaurant, err := svc.GetPublic(r.Context(), chi.URLParam(r, "restaurantId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := menuSvc.ListPublic(r.Context(), restaurant.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, publicRestaurantResponse{Restaurant: restaurant, Menu: items})
	}
}

// PaymentSettingsGet shows which gateways are configured, without secrets.
func PaymentSettingsGet(svc restaurants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		restaurantID, err := validators.ParseUUIDParam(r, "restaurantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetPaymentSettings(r.Context(), ownerID, restaurantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// PaymentSettingsUpdate stores gateway credentials for one restaurant.
func PaymentSettingsUpdate(svc restaurants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		restaurantID, err := validators.ParseUUIDParam(r, "restaurantId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body paymentSettingsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body == (paymentSettingsRequest{}) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "no settings to update"))
			return
		}
		view, err := svc.UpdatePaymentSettings(r.Context(), ownerID, restaurantID, restaurants.PaymentSettingsInput{
			MpesaConsumerKey:      body.MpesaConsumerKey,
			MpesaConsumerSecret:   body.MpesaConsumerSecret,
			MpesaShortcode:        body.MpesaShortcode,
			MpesaPasskey:          body.MpesaPasskey,
			MpesaEnvironment:      body.MpesaEnvironment,
			PesapalConsumerKey:    body.PesapalConsumerKey,
			PesapalConsumerSecret: body.PesapalConsumerSecret,
			PesapalIPNID:          body.PesapalIPNID,
			PesapalEnvironment:    body.PesapalEnvironment,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
