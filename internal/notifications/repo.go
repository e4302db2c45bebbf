package notifications

import (
	"context"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/repo"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/pagination"
	"gorm.io/gorm"
)

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

type listNotificationsParams struct {
	CustomerToken string
	Limit         int
	Cursor        *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	return &repositoryImpl{Base: r.Base.WithTx(tx)}
}

func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) error {
	return r.DB(ctx).Create(notification).Error
}

func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := params.Cursor.After(r.DB(ctx).Model(&models.Notification{}).Where("customer_token = ?", params.CustomerToken))

	var notifications []models.Notification
	if err := query.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&notifications).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(notifications, limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

func (r *repositoryImpl) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.DB(ctx).Where("created_at < ?", before).Delete(&models.Notification{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
