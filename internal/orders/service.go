package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/realtime"
	"github.com/angelmondragon/tableside-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ordersTable         = "orders"
	customerTokenLength = 24
	tokenAttempts       = 3
	swapAttempts        = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publisher interface {
	Publish(ctx context.Context, channel string, event realtime.Event) error
}

// Notifier pushes an order's current status to its customer.
type Notifier interface {
	NotifyOrderStatus(ctx context.Context, order *models.Order) error
}

type failureCounter interface {
	IncNotificationFailure()
}

// Service owns every order mutation. Staff calls are scoped through the owner
// id; privileged calls are not.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error)
	GetByCustomerToken(ctx context.Context, token string) (*models.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByGatewayReference(ctx context.Context, reference string) (*models.Order, error)
	SetGatewayReference(ctx context.Context, id uuid.UUID, reference string) error
	FetchOrders(ctx context.Context, ownerID uuid.UUID) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, ownerID, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
	// MarkOrderPaid confirms a pending order; preparing and ready are kept.
	MarkOrderPaid(ctx context.Context, ownerID, orderID uuid.UUID) (*models.Order, error)
	UpdateTableNumber(ctx context.Context, ownerID, orderID uuid.UUID, tableNumber *string) (*models.Order, error)
	ApplyPrivilegedUpdate(ctx context.Context, update PrivilegedUpdate) (*models.Order, error)
}

// Deps wires the orders service.
type Deps struct {
	Repo     Repository
	Tx       txRunner
	Hub      publisher
	Notifier Notifier
	Failures failureCounter
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	hub      publisher
	notifier Notifier
	failures failureCounter
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the orders service.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("realtime hub required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     deps.Repo,
		tx:       deps.Tx,
		hub:      deps.Hub,
		notifier: deps.Notifier,
		failures: deps.Failures,
		logg:     deps.Logger,
		now:      now,
	}, nil
}

func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	if err := s.validateCheckout(input); err != nil {
		return nil, err
	}

	order := &models.Order{
		RestaurantID:  input.Restaurant.ID,
		OwnerID:       input.Restaurant.OwnerID,
		OrderType:     input.OrderType,
		PaymentMethod: input.PaymentMethod,
		PaymentStatus: enums.PaymentStatusPending,
		OrderStatus:   enums.OrderStatusPending,
		Currency:      input.Restaurant.Currency,
		TableNumber:   clean(input.TableNumber),
		CustomerName:  clean(input.CustomerName),
		CustomerPhone: clean(input.CustomerPhone),
		CustomerEmail: clean(input.CustomerEmail),
		ScheduledFor:  input.ScheduledFor,
	}
	if order.OrderType == enums.OrderTypeNow {
		order.ScheduledFor = nil
	}

	total := decimal.Zero
	for _, line := range input.Lines {
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(lineTotal)
		order.Items = append(order.Items, models.OrderItem{
			MenuItemID:          line.MenuItemID,
			Name:                line.Name,
			UnitPrice:           line.UnitPrice,
			Quantity:            line.Quantity,
			Customizations:      line.Customizations,
			SpecialInstructions: line.SpecialInstructions,
			LineTotal:           lineTotal,
		})
	}
	order.TotalAmount = total

	var err error
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		if err = s.createOrder(ctx, order); err == nil || !db.IsUniqueViolation(err, "") {
			break
		}
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(ctx, "orders.checkout.created")
	s.publish(ctx, order, realtime.OperationInsert)
	return order, nil
}

func (s *service) createOrder(ctx context.Context, order *models.Order) error {
	token, err := security.RandomToken(customerTokenLength)
	if err != nil {
		return err
	}
	order.ID = uuid.New()
	order.CustomerToken = token
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, order)
	})
}

func (s *service) validateCheckout(input CheckoutInput) error {
	if input.Restaurant == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "restaurant is required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for _, line := range input.Lines {
		if line.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be at least 1")
		}
		if line.UnitPrice.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "line price must not be negative")
		}
	}
	if !input.OrderType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "order_type must be now or later")
	}
	if input.OrderType == enums.OrderTypeLater {
		if input.ScheduledFor == nil || !input.ScheduledFor.After(s.now()) {
			return pkgerrors.New(pkgerrors.CodeValidation, "scheduled_for must be in the future for later orders")
		}
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	if input.PaymentMethod == enums.PaymentMethodMpesa && clean(input.CustomerPhone) == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer_phone is required for M-Pesa")
	}
	if input.PaymentMethod == enums.PaymentMethodPesapal && clean(input.CustomerPhone) == nil && clean(input.CustomerEmail) == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer_email or customer_phone is required for Pesapal")
	}
	return nil
}

func (s *service) GetByCustomerToken(ctx context.Context, token string) (*models.Order, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer token is required")
	}
	order, err := s.repo.FindByCustomerToken(ctx, token)
	return found(order, err)
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	return found(order, err)
}

func (s *service) GetByGatewayReference(ctx context.Context, reference string) (*models.Order, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	order, err := s.repo.FindByGatewayReference(ctx, reference)
	return found(order, err)
}

func (s *service) SetGatewayReference(ctx context.Context, id uuid.UUID, reference string) error {
	if err := s.repo.SetGatewayReference(ctx, id, reference); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store gateway reference")
	}
	return nil
}

func (s *service) FetchOrders(ctx context.Context, ownerID uuid.UUID) ([]models.Order, error) {
	out, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	if out == nil {
		out = []models.Order{}
	}
	return out, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, ownerID, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	order, changed, err := s.transition(ctx, orderID, &ownerID, status)
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, order, realtime.OperationUpdate)
		s.notify(ctx, order)
	}
	return order, nil
}

// MarkOrderPaid completes the payment and confirms a pending order. An unpaid
// order already in preparing or ready keeps that status rather than moving
// back to confirmed.
func (s *service) MarkOrderPaid(ctx context.Context, ownerID, orderID uuid.UUID) (*models.Order, error) {
	order, changed, err := s.markPaid(ctx, orderID, &ownerID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, order, realtime.OperationUpdate)
		s.notify(ctx, order)
	}
	return order, nil
}

func (s *service) UpdateTableNumber(ctx context.Context, ownerID, orderID uuid.UUID, tableNumber *string) (*models.Order, error) {
	rows, err := s.repo.UpdateTableNumber(ctx, orderID, ownerID, clean(tableNumber))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update table number")
	}
	if rows == 0 {
		return nil, errOrderNotFound()
	}
	order, err := s.repo.FindForOwner(ctx, ownerID, orderID)
	order, err = found(order, err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, order, realtime.OperationUpdate)
	return order, nil
}

// ApplyPrivilegedUpdate merges a payment outcome and an optional order status.
// Payment moves only forward; a completed payment also confirms a pending order.
func (s *service) ApplyPrivilegedUpdate(ctx context.Context, update PrivilegedUpdate) (*models.Order, error) {
	if update.PaymentStatus == nil && update.OrderStatus == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_status or order_status is required")
	}
	order, err := s.resolve(ctx, update)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	changed := false
	if update.PaymentStatus != nil {
		var moved bool
		switch *update.PaymentStatus {
		case enums.PaymentStatusCompleted:
			order, moved, err = s.markPaid(ctx, order.ID, nil)
		default:
			order, moved, err = s.advancePayment(ctx, order, *update.PaymentStatus)
		}
		if err != nil {
			return nil, err
		}
		changed = changed || moved
	}
	if update.OrderStatus != nil && *update.OrderStatus != order.OrderStatus {
		var moved bool
		order, moved, err = s.transition(ctx, order.ID, nil, *update.OrderStatus)
		if err != nil {
			return nil, err
		}
		changed = changed || moved
	}

	if changed {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"payment_status": order.PaymentStatus,
			"order_status":   order.OrderStatus,
		}), "orders.privileged_update.applied")
		s.publish(ctx, order, realtime.OperationUpdate)
		s.notify(ctx, order)
	}
	return order, nil
}

func (s *service) resolve(ctx context.Context, update PrivilegedUpdate) (*models.Order, error) {
	if update.OrderID != nil && *update.OrderID != uuid.Nil {
		return s.GetByID(ctx, *update.OrderID)
	}
	if strings.TrimSpace(update.Reference) != "" {
		return s.GetByGatewayReference(ctx, update.Reference)
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id or reference is required")
}

func (s *service) markPaid(ctx context.Context, orderID uuid.UUID, ownerID *uuid.UUID) (*models.Order, bool, error) {
	rows, err := s.repo.MarkPaid(ctx, orderID, ownerID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	order, err := s.reload(ctx, orderID, ownerID)
	if err != nil {
		return nil, false, err
	}
	if rows > 0 {
		return order, true, nil
	}
	if order.PaymentStatus == enums.PaymentStatusCompleted {
		return order, false, nil
	}
	return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict, "a cancelled order cannot be marked paid")
}

func (s *service) advancePayment(ctx context.Context, order *models.Order, target enums.PaymentStatus) (*models.Order, bool, error) {
	if !target.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment status %q", target))
	}
	if !SupersedesPayment(order.PaymentStatus, target) {
		return order, false, nil
	}
	rows, err := s.repo.AdvancePayment(ctx, order.ID, nil, target)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	reloaded, err := s.reload(ctx, order.ID, nil)
	if err != nil {
		return nil, false, err
	}
	return reloaded, rows > 0, nil
}

// transition applies a staff move when ownerID is set. Privileged moves are
// forward-only and silently ignore stale targets.
func (s *service) transition(ctx context.Context, orderID uuid.UUID, ownerID *uuid.UUID, target enums.OrderStatus) (*models.Order, bool, error) {
	if !target.IsValid() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", target))
	}
	for attempt := 0; attempt < swapAttempts; attempt++ {
		order, err := s.reload(ctx, orderID, ownerID)
		if err != nil {
			return nil, false, err
		}
		noop, err := CheckStaffTransition(order.OrderStatus, target, order.PaymentStatus)
		if err != nil {
			return nil, false, err
		}
		if noop {
			return order, false, nil
		}
		if ownerID == nil && !IsForward(order.OrderStatus, target) {
			return order, false, nil
		}
		rows, err := s.repo.SwapOrderStatus(ctx, orderID, ownerID, order.OrderStatus, order.PaymentStatus, target)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if rows > 0 {
			order.OrderStatus = target
			order.UpdatedAt = s.now().UTC()
			return order, true, nil
		}
	}
	return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently, retry")
}

func (s *service) reload(ctx context.Context, orderID uuid.UUID, ownerID *uuid.UUID) (*models.Order, error) {
	var (
		order *models.Order
		err   error
	)
	if ownerID != nil {
		order, err = s.repo.FindForOwner(ctx, *ownerID, orderID)
	} else {
		order, err = s.repo.FindByID(ctx, orderID)
	}
	return found(order, err)
}

func (s *service) publish(ctx context.Context, order *models.Order, op realtime.Operation) {
	event := realtime.NewEvent(op, ordersTable, order.ID)
	if err := s.hub.Publish(ctx, realtime.OwnerOrdersChannel(order.OwnerID), event); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.realtime.publish_failed")
	}
	if op == realtime.OperationInsert {
		return
	}
	if err := s.hub.Publish(ctx, realtime.CustomerOrderChannel(order.CustomerToken), event); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.realtime.customer_publish_failed")
	}
}

// notify never fails the caller.
func (s *service) notify(ctx context.Context, order *models.Order) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyOrderStatus(ctx, order); err != nil {
		if s.failures != nil {
			s.failures.IncNotificationFailure()
		}
		s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "orders.notification.failed", err)
	}
}

func found(order *models.Order, err error) (*models.Order, error) {
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, errOrderNotFound()
	}
	return order, nil
}

func errOrderNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func clean(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
