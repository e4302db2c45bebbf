package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
)

// Order is the server-held record of a customer checkout.
// A completed payment never coexists with a pending order status.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CustomerToken    string              `gorm:"column:customer_token;not null;uniqueIndex" json:"customer_token"`
	RestaurantID     uuid.UUID           `gorm:"column:restaurant_id;type:uuid;not null;index" json:"restaurant_id"`
	OwnerID          uuid.UUID           `gorm:"column:owner_id;type:uuid;not null;index" json:"-"`
	OrderType        enums.OrderType     `gorm:"column:order_type;not null;default:'now'" json:"order_type"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;not null" json:"payment_method"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'" json:"payment_status"`
	OrderStatus      enums.OrderStatus   `gorm:"column:order_status;not null;default:'pending'" json:"order_status"`
	TotalAmount      decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null" json:"total_amount"`
	Currency         string              `gorm:"column:currency;not null;default:'KES'" json:"currency"`
	TableNumber      *string             `gorm:"column:table_number" json:"table_number,omitempty"`
	CustomerName     *string             `gorm:"column:customer_name" json:"customer_name,omitempty"`
	CustomerPhone    *string             `gorm:"column:customer_phone" json:"customer_phone,omitempty"`
	CustomerEmail    *string             `gorm:"column:customer_email" json:"customer_email,omitempty"`
	ScheduledFor     *time.Time          `gorm:"column:scheduled_for" json:"scheduled_for,omitempty"`
	GatewayReference *string             `gorm:"column:gateway_reference;index" json:"gateway_reference,omitempty"`
	Items            []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// OrderItem snapshots a cart line at checkout time.
type OrderItem struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID             uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	MenuItemID          uuid.UUID       `gorm:"column:menu_item_id;type:uuid;not null" json:"menu_item_id"`
	Name                string          `gorm:"column:name;not null" json:"name"`
	UnitPrice           decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unit_price"`
	Quantity            int             `gorm:"column:quantity;not null" json:"quantity"`
	Customizations      *string         `gorm:"column:customizations" json:"customizations,omitempty"`
	SpecialInstructions *string         `gorm:"column:special_instructions" json:"special_instructions,omitempty"`
	LineTotal           decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null" json:"line_total"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
