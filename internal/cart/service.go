package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MenuLookup resolves the menu item behind a cart add so prices always come
// from the server.
type MenuLookup interface {
	GetMenuItem(ctx context.Context, restaurantID, itemID uuid.UUID) (*models.MenuItem, error)
}

// StorageProvider returns the storage for one customer cart session.
type StorageProvider func(session string) Storage

// Service exposes cart operations for a (session, restaurant) pair.
type Service interface {
	Get(ctx context.Context, session string, restaurantID uuid.UUID) (*View, error)
	AddItem(ctx context.Context, session string, restaurantID uuid.UUID, input AddItemInput) (*View, error)
	UpdateItem(ctx context.Context, session string, restaurantID uuid.UUID, input UpdateItemInput) (*View, error)
	RemoveItem(ctx context.Context, session string, restaurantID uuid.UUID, itemID string, customizations *string) (*View, error)
	Clear(ctx context.Context, session string, restaurantID uuid.UUID) error
}

// AddItemInput identifies the menu item and the line's options.
type AddItemInput struct {
	MenuItemID          uuid.UUID
	Customizations      *string
	SpecialInstructions *string
}

// UpdateItemInput sets an absolute quantity on a line.
type UpdateItemInput struct {
	ItemID         string
	Quantity       int
	Customizations *string
}

// View is the cart as returned to clients.
type View struct {
	RestaurantID uuid.UUID       `json:"restaurant_id"`
	Items        []Item          `json:"items"`
	Total        decimal.Decimal `json:"total"`
	Count        int             `json:"count"`
}

type service struct {
	storage StorageProvider
	menu    MenuLookup
}

// NewService builds a cart service.
func NewService(storage StorageProvider, menu MenuLookup) (Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("cart storage provider required")
	}
	if menu == nil {
		return nil, fmt.Errorf("menu lookup required")
	}
	return &service{storage: storage, menu: menu}, nil
}

func (s *service) Get(ctx context.Context, session string, restaurantID uuid.UUID) (*View, error) {
	store, err := s.load(ctx, session, restaurantID)
	if err != nil {
		return nil, err
	}
	return viewOf(store), nil
}

func (s *service) AddItem(ctx context.Context, session string, restaurantID uuid.UUID, input AddItemInput) (*View, error) {
	if input.MenuItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu_item_id is required")
	}
	store, err := s.load(ctx, session, restaurantID)
	if err != nil {
		return nil, err
	}

	item, err := s.menu.GetMenuItem(ctx, restaurantID, input.MenuItemID)
	if err != nil {
		return nil, err
	}
	if !item.Available {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("%s is not available right now", item.Name))
	}

	if err := store.Add(ctx, Item{
		ID:                  item.ID.String(),
		Name:                item.Name,
		UnitPrice:           item.Price,
		Customizations:      input.Customizations,
		SpecialInstructions: input.SpecialInstructions,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return viewOf(store), nil
}

func (s *service) UpdateItem(ctx context.Context, session string, restaurantID uuid.UUID, input UpdateItemInput) (*View, error) {
	if strings.TrimSpace(input.ItemID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	store, err := s.load(ctx, session, restaurantID)
	if err != nil {
		return nil, err
	}
	if err := store.UpdateQuantity(ctx, input.ItemID, input.Quantity, input.Customizations); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return viewOf(store), nil
}

func (s *service) RemoveItem(ctx context.Context, session string, restaurantID uuid.UUID, itemID string, customizations *string) (*View, error) {
	store, err := s.load(ctx, session, restaurantID)
	if err != nil {
		return nil, err
	}
	if err := store.Remove(ctx, itemID, customizations); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return viewOf(store), nil
}

func (s *service) Clear(ctx context.Context, session string, restaurantID uuid.UUID) error {
	store, err := s.load(ctx, session, restaurantID)
	if err != nil {
		return err
	}
	if err := store.Clear(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *service) load(ctx context.Context, session string, restaurantID uuid.UUID) (*Store, error) {
	if strings.TrimSpace(session) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart session is required")
	}
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}
	store, err := Load(ctx, s.storage(session), restaurantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return store, nil
}

func viewOf(store *Store) *View {
	items := store.Items()
	return &View{
		RestaurantID: store.RestaurantID(),
		Items:        items,
		Total:        store.Total(),
		Count:        store.Count(),
	}
}
