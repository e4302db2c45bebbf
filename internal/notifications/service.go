// Package notifications records customer-facing order updates and pushes them
// on the customer's realtime channel.
package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/pagination"
	"github.com/angelmondragon/tableside-backend/pkg/realtime"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const notificationsTable = "notifications"

type publisher interface {
	Publish(ctx context.Context, channel string, event realtime.Event) error
}

// Service defines the notification operations.
type Service interface {
	NotifyOrderStatus(ctx context.Context, order *models.Order) error
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

type service struct {
	repo Repository
	hub  publisher
	now  func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	CustomerToken string
	Limit         int
	Cursor        string
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository, hub publisher) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if hub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "realtime hub required")
	}
	return &service{repo: repo, hub: hub, now: time.Now}, nil
}

// NotifyOrderStatus persists the update and publishes it. Both steps are
// attempted; their errors are combined.
func (s *service) NotifyOrderStatus(ctx context.Context, order *models.Order) error {
	if order == nil || order.CustomerToken == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order with customer token required")
	}

	title, message := StatusMessage(order.OrderStatus)
	notification := &models.Notification{
		ID:            uuid.New(),
		OrderID:       order.ID,
		CustomerToken: order.CustomerToken,
		Title:         title,
		Message:       message,
		CreatedAt:     s.now().UTC(),
	}

	var errs error
	if err := s.repo.Create(ctx, notification); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("persist notification: %w", err))
	}
	event := realtime.NewEvent(realtime.OperationInsert, notificationsTable, notification.ID)
	if err := s.hub.Publish(ctx, realtime.CustomerOrderChannel(order.CustomerToken), event); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("publish notification: %w", err))
	}
	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "send order status push")
	}
	return nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	token := strings.TrimSpace(params.CustomerToken)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer token required")
	}

	query := listNotificationsParams{
		CustomerToken: token,
		Limit:         params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.Decode(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = next.Encode()
	}
	if rows == nil {
		rows = []models.Notification{}
	}

	return &ListResult{
		Items:  rows,
		Cursor: cursor,
	}, nil
}

// Purge removes notifications older than the retention window.
func (s *service) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "retention must be positive")
	}
	count, err := s.repo.DeleteOlderThan(ctx, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge notifications")
	}
	return count, nil
}

// StatusMessage is the customer-facing copy for an order status.
func StatusMessage(status enums.OrderStatus) (string, string) {
	switch status {
	case enums.OrderStatusConfirmed:
		return "Order confirmed", "Your order has been confirmed."
	case enums.OrderStatusPreparing:
		return "Order in the kitchen", "Your order is being prepared."
	case enums.OrderStatusReady:
		return "Order ready", "Your order is ready."
	case enums.OrderStatusCompleted:
		return "Order completed", "Thank you for dining with us."
	case enums.OrderStatusCancelled:
		return "Order cancelled", "Your order has been cancelled."
	default:
		return "Order received", "We have received your order."
	}
}
