package models

import (
	"time"

	"github.com/google/uuid"
)

// Owner is a restaurant owner account that signs in to the dashboard.
type Owner struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email        string     `gorm:"column:email;type:text;not null;uniqueIndex" json:"email"`
	Name         string     `gorm:"column:name;not null" json:"name"`
	PasswordHash string     `gorm:"column:password_hash;not null" json:"-"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
