package waitercalls

import (
	"context"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/repo"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists waiter calls.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, call *models.WaiterCall) error
	FindForOwner(ctx context.Context, ownerID, id uuid.UUID) (*models.WaiterCall, error)
	ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, includeCompleted bool) ([]models.WaiterCall, error)
	AdvanceStatus(ctx context.Context, id uuid.UUID, from, to enums.WaiterCallStatus, now time.Time) (int64, error)
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a waiter-call repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, call *models.WaiterCall) error {
	return r.DB(ctx).Create(call).Error
}

// FindForOwner returns nil when the call does not exist or belongs to another owner.
func (r *repository) FindForOwner(ctx context.Context, ownerID, id uuid.UUID) (*models.WaiterCall, error) {
	var call models.WaiterCall
	owned := r.DB(ctx).Model(&models.Restaurant{}).Select("id").Where("owner_id = ?", ownerID)
	query := r.DB(ctx).Where("id = ? AND restaurant_id IN (?)", id, owned)
	found, err := repo.FirstOrNil(query, &call)
	if err != nil || !found {
		return nil, err
	}
	return &call, nil
}

func (r *repository) ListByRestaurant(ctx context.Context, restaurantID uuid.UUID, includeCompleted bool) ([]models.WaiterCall, error) {
	query := r.DB(ctx).Where("restaurant_id = ?", restaurantID)
	if !includeCompleted {
		query = query.Where("status <> ?", enums.WaiterCallStatusCompleted)
	}
	var calls []models.WaiterCall
	if err := query.Order("created_at DESC, id DESC").Find(&calls).Error; err != nil {
		return nil, err
	}
	return calls, nil
}

// AdvanceStatus is a compare-and-set on the current status.
func (r *repository) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to enums.WaiterCallStatus, now time.Time) (int64, error) {
	result := r.DB(ctx).
		Model(&models.WaiterCall{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": now})
	return result.RowsAffected, result.Error
}

func (r *repository) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.DB(ctx).
		Where("status = ? AND updated_at < ?", enums.WaiterCallStatusCompleted, before).
		Delete(&models.WaiterCall{})
	return result.RowsAffected, result.Error
}
