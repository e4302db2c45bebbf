// Package waitercalls lets a table ask for staff and lets staff work the queue.
package waitercalls

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/realtime"
	"github.com/google/uuid"
)

const (
	waiterCallsTable = "waiter_calls"
	maxNotesLength   = 500
)

type restaurantLookup interface {
	Get(ctx context.Context, restaurantID uuid.UUID) (*models.Restaurant, error)
	RequireOwner(ctx context.Context, ownerID, restaurantID uuid.UUID) (*models.Restaurant, error)
}

type publisher interface {
	Publish(ctx context.Context, channel string, event realtime.Event) error
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Service is the waiter-call channel.
type Service interface {
	CreateCall(ctx context.Context, restaurantID uuid.UUID, tableNumber string, notes *string) (*models.WaiterCall, error)
	UpdateStatus(ctx context.Context, ownerID, callID uuid.UUID, status enums.WaiterCallStatus) (*models.WaiterCall, error)
	ListCalls(ctx context.Context, ownerID, restaurantID uuid.UUID, includeCompleted bool) ([]models.WaiterCall, error)
	PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Deps wires the waiter-call service. Limiter is optional.
type Deps struct {
	Repo        Repository
	Restaurants restaurantLookup
	Hub         publisher
	Limiter     rateLimiter
	Limit       int
	Window      time.Duration
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	repo        Repository
	restaurants restaurantLookup
	hub         publisher
	limiter     rateLimiter
	limit       int64
	window      time.Duration
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the waiter-call service.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("waiter call repository required")
	}
	if deps.Restaurants == nil {
		return nil, fmt.Errorf("restaurant lookup required")
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
		repo:        deps.Repo,
		restaurants: deps.Restaurants,
		hub:         deps.Hub,
		limiter:     deps.Limiter,
		limit:       int64(deps.Limit),
		window:      deps.Window,
		logg:        deps.Logger,
		now:         now,
	}, nil
}

func (s *service) CreateCall(ctx context.Context, restaurantID uuid.UUID, tableNumber string, notes *string) (*models.WaiterCall, error) {
	table := strings.TrimSpace(tableNumber)
	if table == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table number is required")
	}
	if restaurantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restaurant id is required")
	}
	cleanNotes := trimOptional(notes)
	if cleanNotes != nil && len(*cleanNotes) > maxNotesLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("notes must be at most %d characters", maxNotesLength))
	}

	if _, err := s.restaurants.Get(ctx, restaurantID); err != nil {
		return nil, err
	}
	if err := s.allow(ctx, restaurantID, table); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	call := &models.WaiterCall{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		TableNumber:  table,
		Notes:        cleanNotes,
		Status:       enums.WaiterCallStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, call); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create waiter call")
	}
	s.publish(ctx, realtime.OperationInsert, call)
	return call, nil
}

func (s *service) UpdateStatus(ctx context.Context, ownerID, callID uuid.UUID, status enums.WaiterCallStatus) (*models.WaiterCall, error) {
	if status != enums.WaiterCallStatusAcknowledged && status != enums.WaiterCallStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid waiter call status %q", status))
	}

	call, err := s.repo.FindForOwner(ctx, ownerID, callID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load waiter call")
	}
	if call == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "waiter call not found")
	}
	if call.Status == status {
		return call, nil
	}
	if status.Rank() < call.Status.Rank() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("waiter call cannot move from %s back to %s", call.Status, status))
	}

	now := s.now().UTC()
	rows, err := s.repo.AdvanceStatus(ctx, call.ID, call.Status, status, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update waiter call")
	}
	if rows == 0 {
		// Another staff member moved it first; report what they left.
		current, err := s.repo.FindForOwner(ctx, ownerID, callID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load waiter call")
		}
		if current != nil && current.Status.Rank() >= status.Rank() {
			return current, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "waiter call changed concurrently")
	}

	call.Status = status
	call.UpdatedAt = now
	s.publish(ctx, realtime.OperationUpdate, call)
	return call, nil
}

func (s *service) ListCalls(ctx context.Context, ownerID, restaurantID uuid.UUID, includeCompleted bool) ([]models.WaiterCall, error) {
	if _, err := s.restaurants.RequireOwner(ctx, ownerID, restaurantID); err != nil {
		return nil, err
	}
	calls, err := s.repo.ListByRestaurant(ctx, restaurantID, includeCompleted)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list waiter calls")
	}
	if calls == nil {
		calls = []models.WaiterCall{}
	}
	return calls, nil
}

// PurgeCompleted removes calls that were completed before the retention window.
func (s *service) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "retention must be positive")
	}
	count, err := s.repo.DeleteCompletedBefore(ctx, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge waiter calls")
	}
	return count, nil
}

func (s *service) allow(ctx context.Context, restaurantID uuid.UUID, table string) error {
	if s.limiter == nil || s.limit <= 0 || s.window <= 0 {
		return nil
	}
	scope := fmt.Sprintf("waiter_call:%s:%s", restaurantID, strings.ToLower(table))
	allowed, count, err := s.limiter.FixedWindowAllow(ctx, scope, s.limit, s.window)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting")
	}
	if !allowed {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"restaurant_id": restaurantID.String(),
			"table_number":  table,
			"count":         count,
		}), "waiter_call.rate_limited")
		return pkgerrors.New(pkgerrors.CodeRateLimit, "a waiter has already been called for this table, please wait")
	}
	return nil
}

func (s *service) publish(ctx context.Context, op realtime.Operation, call *models.WaiterCall) {
	event := realtime.NewEvent(op, waiterCallsTable, call.ID)
	if err := s.hub.Publish(ctx, realtime.RestaurantWaiterCallsChannel(call.RestaurantID), event); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "waiter_call_id", call.ID.String()), "waiter_call.publish_failed", err)
	}
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
