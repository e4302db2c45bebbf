package restaurants

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/angelmondragon/tableside-backend/internal/repo"
	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/google/uuid"
)

var slugSanitizeRe = regexp.MustCompile(`[^a-z0-9]+`)

// Service covers owner restaurant management and the credential lookup used
// by the payment gateways.
type Service interface {
	Create(ctx context.Context, ownerID uuid.UUID, input CreateInput) (*models.Restaurant, error)
	ListForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Restaurant, error)
	GetPublic(ctx context.Context, idOrSlug string) (*models.Restaurant, error)
	RequireOwner(ctx context.Context, ownerID, restaurantID uuid.UUID) (*models.Restaurant, error)
	Get(ctx context.Context, restaurantID uuid.UUID) (*models.Restaurant, error)
	GetPaymentSettings(ctx context.Context, ownerID, restaurantID uuid.UUID) (*PaymentSettingsView, error)
	UpdatePaymentSettings(ctx context.Context, ownerID, restaurantID uuid.UUID, input PaymentSettingsInput) (*PaymentSettingsView, error)
	Credentials(ctx context.Context, restaurantID uuid.UUID) (*models.PaymentSettings, error)
}

// CreateInput describes a new restaurant.
type CreateInput struct {
	Name     string
	Slug     string
	Currency string
}

// PaymentSettingsInput is a partial update; nil fields keep their value.
type PaymentSettingsInput struct {
	MpesaConsumerKey      *string
	MpesaConsumerSecret   *string
	MpesaShortcode        *string
	MpesaPasskey          *string
	MpesaEnvironment      *string
	PesapalConsumerKey    *string
	PesapalConsumerSecret *string
	PesapalIPNID          *string
	PesapalEnvironment    *string
}

// PaymentSettingsView is safe to return to the owner: secrets are reduced to
// "configured" flags.
type PaymentSettingsView struct {
	MpesaConfigured    bool                     `json:"mpesa_configured"`
	MpesaShortcode     string                   `json:"mpesa_shortcode,omitempty"`
	MpesaEnvironment   enums.GatewayEnvironment `json:"mpesa_environment"`
	PesapalConfigured  bool                     `json:"pesapal_configured"`
	PesapalIPNID       string                   `json:"pesapal_ipn_id,omitempty"`
	PesapalEnvironment enums.GatewayEnvironment `json:"pesapal_environment"`
}

type service struct {
	repo            Repository
	defaultCurrency string
}

// NewService builds the restaurants service.
func NewService(repo Repository, defaultCurrency string) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("restaurants repository required")
	}
	if strings.TrimSpace(defaultCurrency) == "" {
		defaultCurrency = "KES"
	}
	return &service{repo: repo, defaultCurrency: defaultCurrency}, nil
}

func (s *service) Create(ctx context.Context, ownerID uuid.UUID, input CreateInput) (*models.Restaurant, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	slug := Slugify(input.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug must contain letters or digits")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	restaurant := &models.Restaurant{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		Name:     name,
		Slug:     slug,
		Currency: currency,
	}
	if err := s.repo.Create(ctx, restaurant); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("slug %q is already taken", slug))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create restaurant")
	}
	return restaurant, nil
}

func (s *service) ListForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Restaurant, error) {
	out, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list restaurants")
	}
	return out, nil
}

func (s *service) GetPublic(ctx context.Context, idOrSlug string) (*models.Restaurant, error) {
	key := strings.TrimSpace(idOrSlug)
	var (
		restaurant *models.Restaurant
		err        error
	)
	if id, parseErr := uuid.Parse(key); parseErr == nil {
		restaurant, err = s.repo.FindByID(ctx, id)
	} else {
		restaurant, err = s.repo.FindBySlug(ctx, strings.ToLower(key))
	}
	return restaurant, mapLookupErr(err)
}

func (s *service) Get(ctx context.Context, restaurantID uuid.UUID) (*models.Restaurant, error) {
	restaurant, err := s.repo.FindByID(ctx, restaurantID)
	return restaurant, mapLookupErr(err)
}

func (s *service) RequireOwner(ctx context.Context, ownerID, restaurantID uuid.UUID) (*models.Restaurant, error) {
	restaurant, err := s.repo.FindForOwner(ctx, ownerID, restaurantID)
	return restaurant, mapLookupErr(err)
}

func (s *service) GetPaymentSettings(ctx context.Context, ownerID, restaurantID uuid.UUID) (*PaymentSettingsView, error) {
	if _, err := s.RequireOwner(ctx, ownerID, restaurantID); err != nil {
		return nil, err
	}
	settings, err := s.Credentials(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	return viewOf(settings), nil
}

func (s *service) UpdatePaymentSettings(ctx context.Context, ownerID, restaurantID uuid.UUID, input PaymentSettingsInput) (*PaymentSettingsView, error) {
	if _, err := s.RequireOwner(ctx, ownerID, restaurantID); err != nil {
		return nil, err
	}
	settings, err := s.Credentials(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	assign(&settings.MpesaConsumerKey, input.MpesaConsumerKey)
	assign(&settings.MpesaConsumerSecret, input.MpesaConsumerSecret)
	assign(&settings.MpesaShortcode, input.MpesaShortcode)
	assign(&settings.MpesaPasskey, input.MpesaPasskey)
	assign(&settings.PesapalConsumerKey, input.PesapalConsumerKey)
	assign(&settings.PesapalConsumerSecret, input.PesapalConsumerSecret)
	assign(&settings.PesapalIPNID, input.PesapalIPNID)
	if input.MpesaEnvironment != nil {
		settings.MpesaEnvironment = enums.ParseGatewayEnvironment(*input.MpesaEnvironment)
	}
	if input.PesapalEnvironment != nil {
		settings.PesapalEnvironment = enums.ParseGatewayEnvironment(*input.PesapalEnvironment)
	}

	if err := s.repo.UpsertPaymentSettings(ctx, settings); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payment settings")
	}
	return viewOf(settings), nil
}

// Credentials returns the stored gateway settings, or empty sandbox settings
// when none were saved yet.
func (s *service) Credentials(ctx context.Context, restaurantID uuid.UUID) (*models.PaymentSettings, error) {
	settings, err := s.repo.FindPaymentSettings(ctx, restaurantID)
	if repo.IsNotFound(err) {
		return &models.PaymentSettings{
			RestaurantID:       restaurantID,
			MpesaEnvironment:   enums.GatewayEnvironmentSandbox,
			PesapalEnvironment: enums.GatewayEnvironmentSandbox,
		}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment settings")
	}
	return settings, nil
}

// Slugify lowercases and joins alphanumeric runs with dashes.
func Slugify(value string) string {
	slug := strings.ToLower(strings.TrimSpace(value))
	slug = slugSanitizeRe.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

func viewOf(settings *models.PaymentSettings) *PaymentSettingsView {
	return &PaymentSettingsView{
		MpesaConfigured:    settings.MpesaConsumerKey != "" && settings.MpesaConsumerSecret != "" && settings.MpesaShortcode != "" && settings.MpesaPasskey != "",
		MpesaShortcode:     settings.MpesaShortcode,
		MpesaEnvironment:   settings.MpesaEnvironment,
		PesapalConfigured:  settings.PesapalConsumerKey != "" && settings.PesapalConsumerSecret != "" && settings.PesapalIPNID != "",
		PesapalIPNID:       settings.PesapalIPNID,
		PesapalEnvironment: settings.PesapalEnvironment,
	}
}

func assign(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}

func mapLookupErr(err error) error {
	if err == nil {
		return nil
	}
	if repo.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "restaurant not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load restaurant")
}
