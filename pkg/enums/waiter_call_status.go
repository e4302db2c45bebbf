package enums

import "fmt"

// WaiterCallStatus tracks a table's request for staff attention.
type WaiterCallStatus string

const (
	WaiterCallStatusPending      WaiterCallStatus = "pending"
	WaiterCallStatusAcknowledged WaiterCallStatus = "acknowledged"
	WaiterCallStatusCompleted    WaiterCallStatus = "completed"
)

// Rank orders waiter-call statuses; progress only moves to a higher rank.
func (s WaiterCallStatus) Rank() int {
	switch s {
	case WaiterCallStatusPending:
		return 0
	case WaiterCallStatusAcknowledged:
		return 1
	case WaiterCallStatusCompleted:
		return 2
	}
	return -1
}

// IsValid reports whether the value is a known WaiterCallStatus.
func (s WaiterCallStatus) IsValid() bool {
	return s.Rank() >= 0
}

// ParseWaiterCallStatus converts raw input into a WaiterCallStatus.
func ParseWaiterCallStatus(value string) (WaiterCallStatus, error) {
	s := WaiterCallStatus(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid waiter call status %q", value)
	}
	return s, nil
}
