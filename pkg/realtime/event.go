// Package realtime fans out row-change events to in-process subscribers,
// either locally or across instances through Redis pub/sub.
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation is the row-level change that produced an event.
type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// Event is the payload published on a channel. Subscribers get no row data and
// refetch what they need.
type Event struct {
	Type       Operation `json:"type"`
	Table      string    `json:"table"`
	RecordID   string    `json:"record_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent stamps an event with the current time.
func NewEvent(op Operation, table string, recordID uuid.UUID) Event {
	return Event{Type: op, Table: table, RecordID: recordID.String(), OccurredAt: time.Now().UTC()}
}

// Subscription delivers events for one channel until closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Hub publishes and subscribes to named channels.
type Hub interface {
	Publish(ctx context.Context, channel string, event Event) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// OwnerOrdersChannel carries order changes for every restaurant of one owner.
func OwnerOrdersChannel(ownerID uuid.UUID) string {
	return fmt.Sprintf("orders:owner:%s", ownerID)
}

// RestaurantWaiterCallsChannel carries waiter-call changes for one restaurant.
func RestaurantWaiterCallsChannel(restaurantID uuid.UUID) string {
	return fmt.Sprintf("waiter_calls:restaurant:%s", restaurantID)
}

// CustomerOrderChannel carries status pushes for a single customer order.
func CustomerOrderChannel(customerToken string) string {
	return fmt.Sprintf("orders:customer:%s", customerToken)
}
