package menu

import (
	"context"

	"github.com/angelmondragon/tableside-backend/internal/repo"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists menu items. Every lookup is scoped to a restaurant.
type Repository interface {
	Create(ctx context.Context, item *models.MenuItem) error
	Save(ctx context.Context, item *models.MenuItem) error
	Delete(ctx context.Context, restaurantID, id uuid.UUID) (bool, error)
	FindByID(ctx context.Context, restaurantID, id uuid.UUID) (*models.MenuItem, error)
	List(ctx context.Context, restaurantID uuid.UUID, availableOnly bool) ([]models.MenuItem, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a menu repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) Create(ctx context.Context, item *models.MenuItem) error {
	return r.DB(ctx).Create(item).Error
}

func (r *repository) Save(ctx context.Context, item *models.MenuItem) error {
	return r.DB(ctx).Save(item).Error
}

func (r *repository) Delete(ctx context.Context, restaurantID, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).Where("id = ? AND restaurant_id = ?", id, restaurantID).Delete(&models.MenuItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByID(ctx context.Context, restaurantID, id uuid.UUID) (*models.MenuItem, error) {
	var item models.MenuItem
	ok, err := repo.FirstOrNil(r.DB(ctx).Where("id = ? AND restaurant_id = ?", id, restaurantID), &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (r *repository) List(ctx context.Context, restaurantID uuid.UUID, availableOnly bool) ([]models.MenuItem, error) {
	query := r.DB(ctx).Where("restaurant_id = ?", restaurantID)
	if availableOnly {
		query = query.Where("available = ?", true)
	}
	var out []models.MenuItem
	if err := query.Order("category ASC").Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
