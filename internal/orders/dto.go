package orders

import (
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one priced cart line handed to checkout.
type Line struct {
	MenuItemID          uuid.UUID
	Name                string
	UnitPrice           decimal.Decimal
	Quantity            int
	Customizations      *string
	SpecialInstructions *string
}

// CheckoutInput turns a cart into an order for one restaurant.
type CheckoutInput struct {
	Restaurant    *models.Restaurant
	Lines         []Line
	OrderType     enums.OrderType
	PaymentMethod enums.PaymentMethod
	TableNumber   *string
	CustomerName  *string
	CustomerPhone *string
	CustomerEmail *string
	ScheduledFor  *time.Time
}

// PrivilegedUpdate is the service-key status write used by the payment
// confirmation path. The order is addressed by id or by gateway reference.
type PrivilegedUpdate struct {
	OrderID       *uuid.UUID
	Reference     string
	PaymentStatus *enums.PaymentStatus
	OrderStatus   *enums.OrderStatus
}

// PublicOrder is what a customer sees when tracking an order.
type PublicOrder struct {
	ID            uuid.UUID           `json:"id"`
	RestaurantID  uuid.UUID           `json:"restaurant_id"`
	OrderType     enums.OrderType     `json:"order_type"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	OrderStatus   enums.OrderStatus   `json:"order_status"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	Currency      string              `json:"currency"`
	TableNumber   *string             `json:"table_number,omitempty"`
	ScheduledFor  *time.Time          `json:"scheduled_for,omitempty"`
	Items         []models.OrderItem  `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewPublicOrder drops the gateway and contact fields from an order.
func NewPublicOrder(order *models.Order) PublicOrder {
	items := order.Items
	if items == nil {
		items = []models.OrderItem{}
	}
	return PublicOrder{
		ID:            order.ID,
		RestaurantID:  order.RestaurantID,
		OrderType:     order.OrderType,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.OrderStatus,
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency,
		TableNumber:   order.TableNumber,
		ScheduledFor:  order.ScheduledFor,
		Items:         items,
		CreatedAt:     order.CreatedAt,
	}
}
