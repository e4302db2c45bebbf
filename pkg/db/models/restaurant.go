package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
)

// Restaurant is a tenant owned by exactly one owner.
type Restaurant struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID   uuid.UUID        `gorm:"column:owner_id;type:uuid;not null;index" json:"owner_id"`
	Name      string           `gorm:"column:name;not null" json:"name"`
	Slug      string           `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Currency  string           `gorm:"column:currency;not null;default:'KES'" json:"currency"`
	Settings  *PaymentSettings `gorm:"foreignKey:RestaurantID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// PaymentSettings holds a restaurant's own gateway credentials. None of it is
// ever serialized.
type PaymentSettings struct {
	RestaurantID uuid.UUID `gorm:"column:restaurant_id;type:uuid;primaryKey" json:"-"`

	MpesaConsumerKey    string                   `gorm:"column:mpesa_consumer_key" json:"-"`
	MpesaConsumerSecret string                   `gorm:"column:mpesa_consumer_secret" json:"-"`
	MpesaShortcode      string                   `gorm:"column:mpesa_shortcode" json:"-"`
	MpesaPasskey        string                   `gorm:"column:mpesa_passkey" json:"-"`
	MpesaEnvironment    enums.GatewayEnvironment `gorm:"column:mpesa_environment;not null;default:'sandbox'" json:"-"`

	PesapalConsumerKey    string                   `gorm:"column:pesapal_consumer_key" json:"-"`
	PesapalConsumerSecret string                   `gorm:"column:pesapal_consumer_secret" json:"-"`
	PesapalIPNID          string                   `gorm:"column:pesapal_ipn_id" json:"-"`
	PesapalEnvironment    enums.GatewayEnvironment `gorm:"column:pesapal_environment;not null;default:'sandbox'" json:"-"`

	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (PaymentSettings) TableName() string {
	return "restaurant_payment_settings"
}
