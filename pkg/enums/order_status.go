package enums

import (
	"fmt"
	"strings"
)

// OrderStatus tracks the kitchen lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Rank orders the kitchen progression. Cancelled sits outside it and ranks -1
// like unknown values.
func (s OrderStatus) Rank() int {
	switch s {
	case OrderStatusPending:
		return 0
	case OrderStatusConfirmed:
		return 1
	case OrderStatusPreparing:
		return 2
	case OrderStatusReady:
		return 3
	case OrderStatusCompleted:
		return 4
	}
	return -1
}

// IsPaidCompatible reports whether a paid order may sit in this status.
func (s OrderStatus) IsPaidCompatible() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady, OrderStatusCompleted:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validOrderStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
