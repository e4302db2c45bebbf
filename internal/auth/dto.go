package auth

import (
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/google/uuid"
)

// LoginRequest captures the owner credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest creates an owner account.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// OwnerDTO is the public view of an owner.
type OwnerDTO struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// FromModel maps an owner row to its DTO.
func FromModel(owner *models.Owner) *OwnerDTO {
	if owner == nil {
		return nil
	}
	return &OwnerDTO{
		ID:          owner.ID,
		Email:       owner.Email,
		Name:        owner.Name,
		LastLoginAt: owner.LastLoginAt,
		CreatedAt:   owner.CreatedAt,
	}
}

// LoginResponse contains the access token and the signed-in owner.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Owner       *OwnerDTO `json:"owner"`
}
