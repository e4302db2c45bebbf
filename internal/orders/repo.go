package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/repo"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists orders. Mutations take an optional owner id; when set it
// is part of the WHERE clause so a foreign order updates zero rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindForOwner(ctx context.Context, ownerID, id uuid.UUID) (*models.Order, error)
	FindByCustomerToken(ctx context.Context, token string) (*models.Order, error)
	FindByGatewayReference(ctx context.Context, reference string) (*models.Order, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Order, error)
	SetGatewayReference(ctx context.Context, id uuid.UUID, reference string) error
	AdvancePayment(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID, target enums.PaymentStatus) (int64, error)
	MarkPaid(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (int64, error)
	SwapOrderStatus(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID, from enums.OrderStatus, payment enums.PaymentStatus, to enums.OrderStatus) (int64, error)
	UpdateTableNumber(ctx context.Context, id, ownerID uuid.UUID, tableNumber *string) (int64, error)
}

type repository struct {
	repo.Base
	now func() time.Time
}

// NewRepository builds an orders repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db), now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx), now: r.now}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	items := order.Items
	order.Items = nil
	if err := r.DB(ctx).Omit(clause.Associations).Create(order).Error; err != nil {
		order.Items = items
		return err
	}
	order.Items = items
	if len(items) == 0 {
		return nil
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	return r.DB(ctx).Create(&order.Items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.first(r.withItems(ctx).Where("id = ?", id))
}

func (r *repository) FindForOwner(ctx context.Context, ownerID, id uuid.UUID) (*models.Order, error) {
	return r.first(r.withItems(ctx).Where("id = ? AND owner_id = ?", id, ownerID))
}

func (r *repository) FindByCustomerToken(ctx context.Context, token string) (*models.Order, error) {
	return r.first(r.withItems(ctx).Where("customer_token = ?", token))
}

func (r *repository) FindByGatewayReference(ctx context.Context, reference string) (*models.Order, error) {
	return r.first(r.withItems(ctx).Where("gateway_reference = ?", reference))
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Order, error) {
	var out []models.Order
	if err := r.withItems(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) SetGatewayReference(ctx context.Context, id uuid.UUID, reference string) error {
	return r.DB(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{"gateway_reference": reference, "updated_at": r.now().UTC()}).Error
}

// AdvancePayment moves payment_status to target only from a lower rank.
func (r *repository) AdvancePayment(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID, target enums.PaymentStatus) (int64, error) {
	below := target.Below()
	if len(below) == 0 {
		return 0, nil
	}
	res := r.scoped(ctx, id, ownerID).
		Where("payment_status IN ?", below).
		Updates(map[string]any{"payment_status": target, "updated_at": r.now().UTC()})
	return res.RowsAffected, res.Error
}

// MarkPaid completes the payment and confirms a still-pending order in the
// same statement. Later kitchen statuses are kept.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) (int64, error) {
	confirmPending := gorm.Expr("CASE WHEN order_status = ? THEN ? ELSE order_status END",
		enums.OrderStatusPending, enums.OrderStatusConfirmed)
	res := r.scoped(ctx, id, ownerID).
		Where("payment_status <> ?", enums.PaymentStatusCompleted).
		Where("order_status <> ?", enums.OrderStatusCancelled).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusCompleted,
			"order_status":   confirmPending,
			"updated_at":     r.now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// SwapOrderStatus is a compare-and-set on (order_status, payment_status).
func (r *repository) SwapOrderStatus(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID, from enums.OrderStatus, payment enums.PaymentStatus, to enums.OrderStatus) (int64, error) {
	res := r.scoped(ctx, id, ownerID).
		Where("order_status = ? AND payment_status = ?", from, payment).
		Updates(map[string]any{"order_status": to, "updated_at": r.now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateTableNumber(ctx context.Context, id, ownerID uuid.UUID, tableNumber *string) (int64, error) {
	res := r.scoped(ctx, id, &ownerID).
		Updates(map[string]any{"table_number": tableNumber, "updated_at": r.now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *repository) scoped(ctx context.Context, id uuid.UUID, ownerID *uuid.UUID) *gorm.DB {
	query := r.DB(ctx).Model(&models.Order{}).Where("id = ?", id)
	if ownerID != nil {
		query = query.Where("owner_id = ?", *ownerID)
	}
	return query
}

func (r *repository) withItems(ctx context.Context) *gorm.DB {
	return r.DB(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC").Order("id ASC")
	})
}

func (r *repository) first(query *gorm.DB) (*models.Order, error) {
	var order models.Order
	ok, err := repo.FirstOrNil(query, &order)
	if err != nil || !ok {
		return nil, err
	}
	return &order, nil
}
