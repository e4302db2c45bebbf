package reconcile

import (
	"context"

	"github.com/angelmondragon/tableside-backend/internal/orders"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
)

type privilegedUpdater interface {
	ApplyPrivilegedUpdate(ctx context.Context, update orders.PrivilegedUpdate) (*models.Order, error)
}

// OrdersUpdater applies status updates through the orders service directly,
// for reconciliation inside the API process.
type OrdersUpdater struct {
	Orders privilegedUpdater
}

func (u OrdersUpdater) UpdateOrderStatus(ctx context.Context, update StatusUpdate) error {
	privileged, err := ParseStatusUpdate(update)
	if err != nil {
		return err
	}
	_, err = u.Orders.ApplyPrivilegedUpdate(ctx, privileged)
	return err
}

// ParseStatusUpdate converts wire values, accepting "paid" for completed.
func ParseStatusUpdate(update StatusUpdate) (orders.PrivilegedUpdate, error) {
	out := orders.PrivilegedUpdate{Reference: update.Reference}
	if update.PaymentStatus != "" {
		status, err := enums.ParsePaymentStatus(update.PaymentStatus)
		if err != nil {
			return out, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
		}
		out.PaymentStatus = &status
	}
	if update.OrderStatus != "" {
		status, err := enums.ParseOrderStatus(update.OrderStatus)
		if err != nil {
			return out, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
		}
		out.OrderStatus = &status
	}
	return out, nil
}
