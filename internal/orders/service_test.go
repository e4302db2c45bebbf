package orders

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/testdb"
	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/realtime"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubNotifier struct {
	calls []enums.OrderStatus
	err   error
}

func (s *stubNotifier) NotifyOrderStatus(_ context.Context, order *models.Order) error {
	s.calls = append(s.calls, order.OrderStatus)
	return s.err
}

type stubFailures struct{ count int }

func (s *stubFailures) IncNotificationFailure() { s.count++ }

type fixture struct {
	svc        Service
	conn       *gorm.DB
	hub        *realtime.MemoryHub
	notifier   *stubNotifier
	failures   *stubFailures
	restaurant *models.Restaurant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	hub := realtime.NewMemoryHub(16)
	t.Cleanup(func() { _ = hub.Close() })
	f := &fixture{
		conn:     conn,
		hub:      hub,
		notifier: &stubNotifier{},
		failures: &stubFailures{},
		restaurant: &models.Restaurant{
			ID:       uuid.New(),
			OwnerID:  uuid.New(),
			Name:     "Kilimanjaro Grill",
			Currency: "KES",
		},
	}
	svc, err := NewService(Deps{
		Repo:     NewRepository(conn),
		Tx:       db.Wrap(conn),
		Hub:      hub,
		Notifier: f.notifier,
		Failures: f.failures,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) checkout(t *testing.T, method enums.PaymentMethod) *models.Order {
	t.Helper()
	phone := "0712345678"
	order, err := f.svc.Checkout(context.Background(), CheckoutInput{
		Restaurant:    f.restaurant,
		OrderType:     enums.OrderTypeNow,
		PaymentMethod: method,
		CustomerPhone: &phone,
		Lines: []Line{
			{MenuItemID: uuid.New(), Name: "Nyama Choma", UnitPrice: decimal.RequireFromString("250"), Quantity: 3},
			{MenuItemID: uuid.New(), Name: "Chai", UnitPrice: decimal.RequireFromString("40.50"), Quantity: 2},
		},
	})
	require.NoError(t, err)
	return order
}

func nextEvent(t *testing.T, sub realtime.Subscription) realtime.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for realtime event")
	}
	return realtime.Event{}
}

func TestCheckoutPersistsOrderAndPublishesInsert(t *testing.T) {
	f := newFixture(t)
	sub, err := f.hub.Subscribe(context.Background(), realtime.OwnerOrdersChannel(f.restaurant.OwnerID))
	require.NoError(t, err)
	defer sub.Close()

	order := f.checkout(t, enums.PaymentMethodMpesa)
	require.Len(t, order.CustomerToken, customerTokenLength)
	require.True(t, order.TotalAmount.Equal(decimal.RequireFromString("831")), "got %s", order.TotalAmount)
	require.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	require.Equal(t, enums.OrderStatusPending, order.OrderStatus)

	ev := nextEvent(t, sub)
	require.Equal(t, realtime.OperationInsert, ev.Type)
	require.Equal(t, order.ID.String(), ev.RecordID)

	listed, err := f.svc.FetchOrders(context.Background(), f.restaurant.OwnerID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Len(t, listed[0].Items, 2)

	tracked, err := f.svc.GetByCustomerToken(context.Background(), order.CustomerToken)
	require.NoError(t, err)
	require.Equal(t, order.ID, tracked.ID)
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	line := []Line{{MenuItemID: uuid.New(), Name: "Chips", UnitPrice: decimal.RequireFromString("150"), Quantity: 1}}
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name  string
		input CheckoutInput
	}{
		{"empty cart", CheckoutInput{Restaurant: f.restaurant, OrderType: enums.OrderTypeNow, PaymentMethod: enums.PaymentMethodCash}},
		{"later without schedule", CheckoutInput{Restaurant: f.restaurant, Lines: line, OrderType: enums.OrderTypeLater, PaymentMethod: enums.PaymentMethodCash}},
		{"later in the past", CheckoutInput{Restaurant: f.restaurant, Lines: line, OrderType: enums.OrderTypeLater, PaymentMethod: enums.PaymentMethodCash, ScheduledFor: &past}},
		{"mpesa without phone", CheckoutInput{Restaurant: f.restaurant, Lines: line, OrderType: enums.OrderTypeNow, PaymentMethod: enums.PaymentMethodMpesa}},
		{"pesapal without contact", CheckoutInput{Restaurant: f.restaurant, Lines: line, OrderType: enums.OrderTypeNow, PaymentMethod: enums.PaymentMethodPesapal}},
		{"unknown method", CheckoutInput{Restaurant: f.restaurant, Lines: line, OrderType: enums.OrderTypeNow, PaymentMethod: "card"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Checkout(context.Background(), tt.input)
			require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
		})
	}
}

func TestMarkOrderPaidConfirmsPendingOrder(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, enums.PaymentMethodCash)
	owner := f.restaurant.OwnerID

	sub, err := f.hub.Subscribe(context.Background(), realtime.CustomerOrderChannel(order.CustomerToken))
	require.NoError(t, err)
	defer sub.Close()

	paid, err := f.svc.MarkOrderPaid(context.Background(), owner, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCompleted, paid.PaymentStatus)
	require.Equal(t, enums.OrderStatusConfirmed, paid.OrderStatus)
	require.Equal(t, []enums.OrderStatus{enums.OrderStatusConfirmed}, f.notifier.calls)
	require.Equal(t, realtime.OperationUpdate, nextEvent(t, sub).Type)

	again, err := f.svc.MarkOrderPaid(context.Background(), owner, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCompleted, again.PaymentStatus)
	require.Len(t, f.notifier.calls, 1, "a repeated mark paid does not notify again")
}

func TestMarkOrderPaidKeepsLaterKitchenStatus(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, enums.PaymentMethodCash)
	owner := f.restaurant.OwnerID

	_, err := f.svc.UpdateOrderStatus(context.Background(), owner, order.ID, enums.OrderStatusPreparing)
	require.NoError(t, err)

	paid, err := f.svc.MarkOrderPaid(context.Background(), owner, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPreparing, paid.OrderStatus)
	require.Equal(t, enums.PaymentStatusCompleted, paid.PaymentStatus)
}

func TestMarkOrderPaidRejectsCancelledAndForeign(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, enums.PaymentMethodCash)
	owner := f.restaurant.OwnerID

	_, err := f.svc.MarkOrderPaid(context.Background(), uuid.New(), order.ID)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = f.svc.UpdateOrderStatus(context.Background(), owner, order.ID, enums.OrderStatusCancelled)
	require.NoError(t, err)

	_, err = f.svc.MarkOrderPaid(context.Background(), owner, order.ID)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestUpdateOrderStatusRules(t *testing.T) {
	f := newFixture(t)
	owner := f.restaurant.OwnerID
	ctx := context.Background()

	order := f.checkout(t, enums.PaymentMethodCash)
	_, err := f.svc.UpdateOrderStatus(ctx, uuid.New(), order.ID, enums.OrderStatusConfirmed)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = f.svc.MarkOrderPaid(ctx, owner, order.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateOrderStatus(ctx, owner, order.ID, enums.OrderStatusPending)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err), "paid orders never return to pending")
	_, err = f.svc.UpdateOrderStatus(ctx, owner, order.ID, enums.OrderStatusCancelled)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))

	ready, err := f.svc.UpdateOrderStatus(ctx, owner, order.ID, enums.OrderStatusReady)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusReady, ready.OrderStatus)

	done, err := f.svc.UpdateOrderStatus(ctx, owner, order.ID, enums.OrderStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCompleted, done.OrderStatus)

	_, err = f.svc.UpdateOrderStatus(ctx, owner, order.ID, enums.OrderStatusReady)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err), "terminal states are absorbing")

	same, err := f.svc.UpdateOrderStatus(ctx, owner, order.ID, enums.OrderStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCompleted, same.OrderStatus)
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("push service down")
	order := f.checkout(t, enums.PaymentMethodCash)

	updated, err := f.svc.UpdateOrderStatus(context.Background(), f.restaurant.OwnerID, order.ID, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, updated.OrderStatus)
	require.Equal(t, 1, f.failures.count)
}

func TestPrivilegedUpdateNeverDowngradesCompleted(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, enums.PaymentMethodMpesa)
	ctx := context.Background()
	require.NoError(t, f.svc.SetGatewayReference(ctx, order.ID, "ws_CO_123"))

	completed := enums.PaymentStatusCompleted
	confirmed := enums.OrderStatusConfirmed
	paid, err := f.svc.ApplyPrivilegedUpdate(ctx, PrivilegedUpdate{Reference: "ws_CO_123", PaymentStatus: &completed, OrderStatus: &confirmed})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCompleted, paid.PaymentStatus)
	require.Equal(t, enums.OrderStatusConfirmed, paid.OrderStatus)

	failed := enums.PaymentStatusFailed
	stale, err := f.svc.ApplyPrivilegedUpdate(ctx, PrivilegedUpdate{OrderID: &order.ID, PaymentStatus: &failed})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCompleted, stale.PaymentStatus)

	var stored models.Order
	require.NoError(t, f.conn.First(&stored, "id = ?", order.ID).Error)
	require.Equal(t, enums.PaymentStatusCompleted, stored.PaymentStatus)
}

func TestPrivilegedUpdateFailedThenCompleted(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, enums.PaymentMethodPesapal)
	ctx := context.Background()

	failed := enums.PaymentStatusFailed
	got, err := f.svc.ApplyPrivilegedUpdate(ctx, PrivilegedUpdate{OrderID: &order.ID, PaymentStatus: &failed})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusFailed, got.PaymentStatus)
	require.Equal(t, enums.OrderStatusPending, got.OrderStatus)

	completed := enums.PaymentStatusCompleted
	got, err = f.svc.ApplyPrivilegedUpdate(ctx, PrivilegedUpdate{OrderID: &order.ID, PaymentStatus: &completed})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCompleted, got.PaymentStatus)
	require.Equal(t, enums.OrderStatusConfirmed, got.OrderStatus)
}

func TestPrivilegedOrderStatusIsForwardOnly(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, enums.PaymentMethodCash)
	ctx := context.Background()
	_, err := f.svc.UpdateOrderStatus(ctx, f.restaurant.OwnerID, order.ID, enums.OrderStatusReady)
	require.NoError(t, err)

	confirmed := enums.OrderStatusConfirmed
	got, err := f.svc.ApplyPrivilegedUpdate(ctx, PrivilegedUpdate{OrderID: &order.ID, OrderStatus: &confirmed})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusReady, got.OrderStatus)

	_, err = f.svc.ApplyPrivilegedUpdate(ctx, PrivilegedUpdate{OrderID: &order.ID})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	missing := uuid.New()
	_, err = f.svc.ApplyPrivilegedUpdate(ctx, PrivilegedUpdate{OrderID: &missing, OrderStatus: &confirmed})
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestUpdateTableNumberIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, enums.PaymentMethodCash)
	ctx := context.Background()
	table := " 12 "

	updated, err := f.svc.UpdateTableNumber(ctx, f.restaurant.OwnerID, order.ID, &table)
	require.NoError(t, err)
	require.NotNil(t, updated.TableNumber)
	require.Equal(t, "12", *updated.TableNumber)

	cleared, err := f.svc.UpdateTableNumber(ctx, f.restaurant.OwnerID, order.ID, nil)
	require.NoError(t, err)
	require.Nil(t, cleared.TableNumber)

	_, err = f.svc.UpdateTableNumber(ctx, uuid.New(), order.ID, &table)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestSchemaRejectsPaidPendingOrder(t *testing.T) {
	f := newFixture(t)
	order := f.checkout(t, enums.PaymentMethodCash)

	err := f.conn.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("payment_status", enums.PaymentStatusCompleted).Error
	require.Error(t, err)
}
