package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
)

// PaymentCallback logs every inbound provider notification as received.
type PaymentCallback struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider      enums.PaymentMethod `gorm:"column:provider;not null"`
	Reference     string              `gorm:"column:reference;not null;index"`
	ResultCode    string              `gorm:"column:result_code;not null"`
	ResultDesc    string              `gorm:"column:result_desc"`
	Amount        *decimal.Decimal    `gorm:"column:amount;type:numeric(12,2)"`
	ReceiptNumber *string             `gorm:"column:receipt_number"`
	PhoneNumber   *string             `gorm:"column:phone_number"`
	Payload       map[string]any      `gorm:"column:payload;type:jsonb;serializer:json"`
	ReceivedAt    time.Time           `gorm:"column:received_at;autoCreateTime"`
}
