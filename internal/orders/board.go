package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/db/models"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/realtime"
	"github.com/google/uuid"
)

// ErrSubscriptionClosed is returned by Board.Run when the hub ends the stream.
var ErrSubscriptionClosed = errors.New("orders: realtime subscription closed")

type subscriber interface {
	Subscribe(ctx context.Context, channel string) (realtime.Subscription, error)
}

type fetcher interface {
	FetchOrders(ctx context.Context, ownerID uuid.UUID) ([]models.Order, error)
}

// Board keeps an owner's order list current: every change event triggers a
// full refetch, and bursts inside the debounce window collapse into one.
type Board struct {
	hub      subscriber
	orders   fetcher
	debounce time.Duration
	logg     *logger.Logger
}

// NewBoard builds a board runner.
func NewBoard(hub subscriber, orders fetcher, debounce time.Duration, logg *logger.Logger) (*Board, error) {
	if hub == nil || orders == nil {
		return nil, fmt.Errorf("board requires a hub and an order fetcher")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Board{hub: hub, orders: orders, debounce: debounce, logg: logg}, nil
}

// Run emits the current snapshot, then a fresh one after every change, until
// ctx ends, the subscription closes, or emit fails.
func (b *Board) Run(ctx context.Context, ownerID uuid.UUID, emit func([]models.Order) error) error {
	sub, err := b.hub.Subscribe(ctx, realtime.OwnerOrdersChannel(ownerID))
	if err != nil {
		return fmt.Errorf("subscribe owner orders: %w", err)
	}
	defer sub.Close()

	snapshot, err := b.orders.FetchOrders(ctx, ownerID)
	if err != nil {
		return err
	}
	if err := emit(snapshot); err != nil {
		return err
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-sub.Events():
			if !ok {
				return ErrSubscriptionClosed
			}
			if b.debounce <= 0 {
				if err := b.refresh(ctx, ownerID, emit); err != nil {
					return err
				}
				continue
			}
			if fire == nil {
				timer = time.NewTimer(b.debounce)
				fire = timer.C
			}
		case <-fire:
			fire = nil
			if err := b.refresh(ctx, ownerID, emit); err != nil {
				return err
			}
		}
	}
}

// refresh keeps the board alive across fetch failures; only emit errors stop it.
func (b *Board) refresh(ctx context.Context, ownerID uuid.UUID, emit func([]models.Order) error) error {
	snapshot, err := b.orders.FetchOrders(ctx, ownerID)
	if err != nil {
		b.logg.Warn(b.logg.WithField(ctx, "error", err.Error()), "orders.board.refetch_failed")
		return nil
	}
	return emit(snapshot)
}
