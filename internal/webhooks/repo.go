package webhooks

import (
	"context"

	"github.com/angelmondragon/tableside-backend/internal/repo"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"gorm.io/gorm"
)

// CallbackRepository appends to the payment callback log.
type CallbackRepository interface {
	Create(ctx context.Context, callback *models.PaymentCallback) error
	ListByReference(ctx context.Context, reference string) ([]models.PaymentCallback, error)
}

type callbackRepository struct {
	repo.Base
}

// NewCallbackRepository builds the callback log repository.
func NewCallbackRepository(db *gorm.DB) CallbackRepository {
	return &callbackRepository{Base: repo.NewBase(db)}
}

func (r *callbackRepository) Create(ctx context.Context, callback *models.PaymentCallback) error {
	return r.DB(ctx).Create(callback).Error
}

func (r *callbackRepository) ListByReference(ctx context.Context, reference string) ([]models.PaymentCallback, error) {
	var rows []models.PaymentCallback
	if err := r.DB(ctx).Where("reference = ?", reference).Order("received_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
