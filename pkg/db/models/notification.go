package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification stores a customer-facing order update, keyed by the public customer token.
type Notification struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID       uuid.UUID `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	CustomerToken string    `gorm:"column:customer_token;not null;index" json:"-"`
	Title         string    `gorm:"column:title;type:text;not null" json:"title"`
	Message       string    `gorm:"column:message;type:text;not null" json:"message"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
