package restaurants

import (
	"context"

	"github.com/angelmondragon/tableside-backend/internal/repo"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists restaurants and their gateway settings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, restaurant *models.Restaurant) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
	FindBySlug(ctx context.Context, slug string) (*models.Restaurant, error)
	FindForOwner(ctx context.Context, ownerID, id uuid.UUID) (*models.Restaurant, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Restaurant, error)
	FindPaymentSettings(ctx context.Context, restaurantID uuid.UUID) (*models.PaymentSettings, error)
	UpsertPaymentSettings(ctx context.Context, settings *models.PaymentSettings) error
}

type repository struct {
	repo.Base
}

// NewRepository builds a restaurants repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, restaurant *models.Restaurant) error {
	return r.DB(ctx).Omit(clause.Associations).Create(restaurant).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	if err := r.DB(ctx).Where("id = ?", id).First(&restaurant).Error; err != nil {
		return nil, err
	}
	return &restaurant, nil
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	if err := r.DB(ctx).Where("slug = ?", slug).First(&restaurant).Error; err != nil {
		return nil, err
	}
	return &restaurant, nil
}

func (r *repository) FindForOwner(ctx context.Context, ownerID, id uuid.UUID) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	if err := r.DB(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&restaurant).Error; err != nil {
		return nil, err
	}
	return &restaurant, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Restaurant, error) {
	var out []models.Restaurant
	if err := r.DB(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) FindPaymentSettings(ctx context.Context, restaurantID uuid.UUID) (*models.PaymentSettings, error) {
	var settings models.PaymentSettings
	if err := r.DB(ctx).Where("restaurant_id = ?", restaurantID).First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *repository) UpsertPaymentSettings(ctx context.Context, settings *models.PaymentSettings) error {
	return r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "restaurant_id"}},
			UpdateAll: true,
		}).
		Create(settings).Error
}
