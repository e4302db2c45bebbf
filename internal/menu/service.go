package menu

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OwnerGuard confirms a restaurant belongs to the caller.
type OwnerGuard interface {
	RequireOwner(ctx context.Context, ownerID, restaurantID uuid.UUID) (*models.Restaurant, error)
}

// Service exposes the public menu and the owner's menu editor.
type Service interface {
	ListPublic(ctx context.Context, restaurantID uuid.UUID) ([]models.MenuItem, error)
	GetMenuItem(ctx context.Context, restaurantID, itemID uuid.UUID) (*models.MenuItem, error)
	ListForOwner(ctx context.Context, ownerID, restaurantID uuid.UUID) ([]models.MenuItem, error)
	Create(ctx context.Context, ownerID, restaurantID uuid.UUID, input ItemInput) (*models.MenuItem, error)
	Update(ctx context.Context, ownerID, restaurantID, itemID uuid.UUID, input ItemPatch) (*models.MenuItem, error)
	Delete(ctx context.Context, ownerID, restaurantID, itemID uuid.UUID) error
}

// ItemInput describes a new dish.
type ItemInput struct {
	Name        string
	Description *string
	Category    *string
	Price       decimal.Decimal
	Available   *bool
}

// ItemPatch is a partial update; nil fields are left alone.
type ItemPatch struct {
	Name        *string
	Description *string
	Category    *string
	Price       *decimal.Decimal
	Available   *bool
}

type service struct {
	repo   Repository
	owners OwnerGuard
}

// NewService builds the menu service.
func NewService(repo Repository, owners OwnerGuard) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("menu repository required")
	}
	if owners == nil {
		return nil, fmt.Errorf("owner guard required")
	}
	return &service{repo: repo, owners: owners}, nil
}

func (s *service) ListPublic(ctx context.Context, restaurantID uuid.UUID) ([]models.MenuItem, error) {
	items, err := s.repo.List(ctx, restaurantID, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list menu")
	}
	return items, nil
}

// GetMenuItem returns one dish of the restaurant, available or not. Callers
// decide what an unavailable dish means for them.
func (s *service) GetMenuItem(ctx context.Context, restaurantID, itemID uuid.UUID) (*models.MenuItem, error) {
	item, err := s.repo.FindByID(ctx, restaurantID, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu item")
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
	}
	return item, nil
}

func (s *service) ListForOwner(ctx context.Context, ownerID, restaurantID uuid.UUID) ([]models.MenuItem, error) {
	if _, err := s.owners.RequireOwner(ctx, ownerID, restaurantID); err != nil {
		return nil, err
	}
	items, err := s.repo.List(ctx, restaurantID, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list menu")
	}
	return items, nil
}

func (s *service) Create(ctx context.Context, ownerID, restaurantID uuid.UUID, input ItemInput) (*models.MenuItem, error) {
	if _, err := s.owners.RequireOwner(ctx, ownerID, restaurantID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if err := validatePrice(input.Price); err != nil {
		return nil, err
	}
	available := true
	if input.Available != nil {
		available = *input.Available
	}

	item := &models.MenuItem{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		Name:         name,
		Description:  trimmed(input.Description),
		Category:     trimmed(input.Category),
		Price:        input.Price.Round(2),
		Available:    available,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create menu item")
	}
	return item, nil
}

func (s *service) Update(ctx context.Context, ownerID, restaurantID, itemID uuid.UUID, input ItemPatch) (*models.MenuItem, error) {
	if _, err := s.owners.RequireOwner(ctx, ownerID, restaurantID); err != nil {
		return nil, err
	}
	item, err := s.GetMenuItem(ctx, restaurantID, itemID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must not be blank")
		}
		item.Name = name
	}
	if input.Description != nil {
		item.Description = trimmed(input.Description)
	}
	if input.Category != nil {
		item.Category = trimmed(input.Category)
	}
	if input.Price != nil {
		if err := validatePrice(*input.Price); err != nil {
			return nil, err
		}
		item.Price = input.Price.Round(2)
	}
	if input.Available != nil {
		item.Available = *input.Available
	}

	if err := s.repo.Save(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update menu item")
	}
	return item, nil
}

func (s *service) Delete(ctx context.Context, ownerID, restaurantID, itemID uuid.UUID) error {
	if _, err := s.owners.RequireOwner(ctx, ownerID, restaurantID); err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, restaurantID, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete menu item")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	return nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
