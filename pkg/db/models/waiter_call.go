package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
)

// WaiterCall is a table's request for staff attention.
type WaiterCall struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RestaurantID uuid.UUID              `gorm:"column:restaurant_id;type:uuid;not null;index" json:"restaurant_id"`
	TableNumber  string                 `gorm:"column:table_number;not null" json:"table_number"`
	Notes        *string                `gorm:"column:notes" json:"notes,omitempty"`
	Status       enums.WaiterCallStatus `gorm:"column:status;not null;default:'pending'" json:"status"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
