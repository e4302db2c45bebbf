package waitercalls

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/tableside-backend/internal/restaurants"
	"github.com/angelmondragon/tableside-backend/internal/testdb"
	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/realtime"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubLimiter struct {
	counts map[string]int64
	err    error
}

func (s *stubLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if s.err != nil {
		return false, 0, s.err
	}
	s.counts[scope]++
	return s.counts[scope] <= limit, s.counts[scope], nil
}

type countingLookup struct {
	calls int
}

func (c *countingLookup) Get(context.Context, uuid.UUID) (*models.Restaurant, error) {
	c.calls++
	return &models.Restaurant{}, nil
}

func (c *countingLookup) RequireOwner(context.Context, uuid.UUID, uuid.UUID) (*models.Restaurant, error) {
	c.calls++
	return &models.Restaurant{}, nil
}

type fixture struct {
	svc        Service
	hub        *realtime.MemoryHub
	limiter    *stubLimiter
	owner      uuid.UUID
	restaurant *models.Restaurant
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := testdb.Open(t)
	restaurantSvc, err := restaurants.NewService(restaurants.NewRepository(conn), "KES")
	require.NoError(t, err)
	owner := uuid.New()
	restaurant, err := restaurantSvc.Create(context.Background(), owner, restaurants.CreateInput{Name: "Mama Oliech"})
	require.NoError(t, err)

	hub := realtime.NewMemoryHub(8)
	t.Cleanup(func() { _ = hub.Close() })
	limiter := &stubLimiter{counts: map[string]int64{}}
	svc, err := NewService(Deps{
		Repo:        NewRepository(conn),
		Restaurants: restaurantSvc,
		Hub:         hub,
		Limiter:     limiter,
		Limit:       2,
		Window:      time.Minute,
		Logger:      testLogger(),
	})
	require.NoError(t, err)
	return fixture{svc: svc, hub: hub, limiter: limiter, owner: owner, restaurant: restaurant}
}

func (f fixture) subscribe(t *testing.T) realtime.Subscription {
	t.Helper()
	sub, err := f.hub.Subscribe(context.Background(), realtime.RestaurantWaiterCallsChannel(f.restaurant.ID))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func nextEvent(t *testing.T, sub realtime.Subscription) realtime.Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("expected a waiter call event")
	}
	return realtime.Event{}
}

func TestCreateCallRejectsBlankTableBeforeIO(t *testing.T) {
	lookup := &countingLookup{}
	limiter := &stubLimiter{counts: map[string]int64{}}
	svc, err := NewService(Deps{Repo: NewRepository(nil), Restaurants: lookup, Hub: realtime.NewMemoryHub(1), Limiter: limiter, Limit: 1, Window: time.Minute, Logger: testLogger()})
	require.NoError(t, err)

	for _, table := range []string{"", "   ", "\t"} {
		_, err := svc.CreateCall(context.Background(), uuid.New(), table, nil)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "table %q", table)
	}
	require.Zero(t, lookup.calls)
	require.Empty(t, limiter.counts)
}

func TestCreateCallPersistsAndPublishes(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t)
	notes := "  extra napkins  "

	call, err := f.svc.CreateCall(context.Background(), f.restaurant.ID, " 12 ", &notes)
	require.NoError(t, err)
	require.Equal(t, "12", call.TableNumber)
	require.Equal(t, "extra napkins", *call.Notes)
	require.Equal(t, enums.WaiterCallStatusPending, call.Status)

	event := nextEvent(t, sub)
	require.Equal(t, realtime.OperationInsert, event.Type)
	require.Equal(t, call.ID.String(), event.RecordID)

	calls, err := f.svc.ListCalls(context.Background(), f.owner, f.restaurant.ID, false)
	require.NoError(t, err)
	require.Len(t, calls, 1)
}

func TestCreateCallUnknownRestaurant(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateCall(context.Background(), uuid.New(), "4", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateCallRateLimitedPerTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := f.svc.CreateCall(ctx, f.restaurant.ID, "7", nil)
		require.NoError(t, err)
	}
	_, err := f.svc.CreateCall(ctx, f.restaurant.ID, "7", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit))

	_, err = f.svc.CreateCall(ctx, f.restaurant.ID, "8", nil)
	require.NoError(t, err)

	f.limiter.err = errors.New("redis down")
	_, err = f.svc.CreateCall(ctx, f.restaurant.ID, "9", nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestUpdateStatusIsForwardOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	call, err := f.svc.CreateCall(ctx, f.restaurant.ID, "3", nil)
	require.NoError(t, err)
	sub := f.subscribe(t)

	acked, err := f.svc.UpdateStatus(ctx, f.owner, call.ID, enums.WaiterCallStatusAcknowledged)
	require.NoError(t, err)
	require.Equal(t, enums.WaiterCallStatusAcknowledged, acked.Status)
	require.Equal(t, realtime.OperationUpdate, nextEvent(t, sub).Type)

	same, err := f.svc.UpdateStatus(ctx, f.owner, call.ID, enums.WaiterCallStatusAcknowledged)
	require.NoError(t, err)
	require.Equal(t, enums.WaiterCallStatusAcknowledged, same.Status)

	done, err := f.svc.UpdateStatus(ctx, f.owner, call.ID, enums.WaiterCallStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, enums.WaiterCallStatusCompleted, done.Status)

	_, err = f.svc.UpdateStatus(ctx, f.owner, call.ID, enums.WaiterCallStatusAcknowledged)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.UpdateStatus(ctx, f.owner, call.ID, enums.WaiterCallStatusPending)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	open, err := f.svc.ListCalls(ctx, f.owner, f.restaurant.ID, false)
	require.NoError(t, err)
	require.Empty(t, open)
	all, err := f.svc.ListCalls(ctx, f.owner, f.restaurant.ID, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestUpdateStatusMaySkipAcknowledged(t *testing.T) {
	f := newFixture(t)
	call, err := f.svc.CreateCall(context.Background(), f.restaurant.ID, "5", nil)
	require.NoError(t, err)

	done, err := f.svc.UpdateStatus(context.Background(), f.owner, call.ID, enums.WaiterCallStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, enums.WaiterCallStatusCompleted, done.Status)
}

func TestForeignOwnerCannotSeeOrUpdate(t *testing.T) {
	f := newFixture(t)
	call, err := f.svc.CreateCall(context.Background(), f.restaurant.ID, "5", nil)
	require.NoError(t, err)

	stranger := uuid.New()
	_, err = f.svc.UpdateStatus(context.Background(), stranger, call.ID, enums.WaiterCallStatusAcknowledged)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.ListCalls(context.Background(), stranger, f.restaurant.ID, true)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestPurgeCompletedKeepsOpenCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old, err := f.svc.CreateCall(ctx, f.restaurant.ID, "1", nil)
	require.NoError(t, err)
	_, err = f.svc.CreateCall(ctx, f.restaurant.ID, "2", nil)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, f.owner, old.ID, enums.WaiterCallStatusCompleted)
	require.NoError(t, err)

	internal := f.svc.(*service)
	internal.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	deleted, err := f.svc.PurgeCompleted(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	all, err := f.svc.ListCalls(ctx, f.owner, f.restaurant.ID, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "2", all[0].TableNumber)
}
