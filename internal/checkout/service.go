// Package checkout turns a customer's session cart into an order.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/cart"
	"github.com/angelmondragon/tableside-backend/internal/orders"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/google/uuid"
)

type restaurantLookup interface {
	Get(ctx context.Context, restaurantID uuid.UUID) (*models.Restaurant, error)
}

type menuLookup interface {
	GetMenuItem(ctx context.Context, restaurantID, itemID uuid.UUID) (*models.MenuItem, error)
}

type cartStore interface {
	Get(ctx context.Context, session string, restaurantID uuid.UUID) (*cart.View, error)
	Clear(ctx context.Context, session string, restaurantID uuid.UUID) error
}

type orderCreator interface {
	Checkout(ctx context.Context, input orders.CheckoutInput) (*models.Order, error)
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, session string, restaurantID uuid.UUID, input Input) (*models.Order, error)
}

// Input captures the customer details collected on the checkout form.
type Input struct {
	OrderType     enums.OrderType
	PaymentMethod enums.PaymentMethod
	TableNumber   *string
	CustomerName  *string
	CustomerPhone *string
	CustomerEmail *string
	ScheduledFor  *time.Time
}

type service struct {
	restaurants restaurantLookup
	menu        menuLookup
	carts       cartStore
	orders      orderCreator
	logg        *logger.Logger
}

// NewService builds the checkout service.
func NewService(restaurants restaurantLookup, menu menuLookup, carts cartStore, orderSvc orderCreator, logg *logger.Logger) (Service, error) {
	if restaurants == nil {
		return nil, fmt.Errorf("restaurant lookup required")
	}
	if menu == nil {
		return nil, fmt.Errorf("menu lookup required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{restaurants: restaurants, menu: menu, carts: carts, orders: orderSvc, logg: logg}, nil
}

// Execute creates the order and then clears the cart. A failed clear does not
// undo the order; the customer can empty the cart themselves.
func (s *service) Execute(ctx context.Context, session string, restaurantID uuid.UUID, input Input) (*models.Order, error) {
	restaurant, err := s.restaurants.Get(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	view, err := s.carts.Get(ctx, session, restaurant.ID)
	if err != nil {
		return nil, err
	}
	lines, err := buildLines(ctx, s.menu, restaurant.ID, view.Items)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.Checkout(ctx, orders.CheckoutInput{
		Restaurant:    restaurant,
		Lines:         lines,
		OrderType:     input.OrderType,
		PaymentMethod: input.PaymentMethod,
		TableNumber:   input.TableNumber,
		CustomerName:  input.CustomerName,
		CustomerPhone: input.CustomerPhone,
		CustomerEmail: input.CustomerEmail,
		ScheduledFor:  input.ScheduledFor,
	})
	if err != nil {
		return nil, err
	}

	if err := s.carts.Clear(ctx, session, restaurant.ID); err != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "checkout.cart_clear_failed", err)
	}
	return order, nil
}
