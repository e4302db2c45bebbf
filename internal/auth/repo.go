package auth

import (
	"context"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/repo"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OwnerRepository persists owner accounts.
type OwnerRepository interface {
	Create(ctx context.Context, owner *models.Owner) error
	FindByEmail(ctx context.Context, email string) (*models.Owner, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Owner, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type ownerRepository struct {
	repo.Base
}

// NewOwnerRepository builds the owners repository.
func NewOwnerRepository(db *gorm.DB) OwnerRepository {
	return &ownerRepository{Base: repo.NewBase(db)}
}

func (r *ownerRepository) Create(ctx context.Context, owner *models.Owner) error {
	return r.DB(ctx).Create(owner).Error
}

func (r *ownerRepository) FindByEmail(ctx context.Context, email string) (*models.Owner, error) {
	var owner models.Owner
	if err := r.DB(ctx).Where("email = ?", email).First(&owner).Error; err != nil {
		return nil, err
	}
	return &owner, nil
}

func (r *ownerRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	var owner models.Owner
	if err := r.DB(ctx).Where("id = ?", id).First(&owner).Error; err != nil {
		return nil, err
	}
	return &owner, nil
}

func (r *ownerRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).Model(&models.Owner{}).Where("id = ?", id).Update("last_login_at", at).Error
}

func (r *ownerRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.DB(ctx).Model(&models.Owner{}).Where("id = ?", id).Update("password_hash", hash).Error
}
