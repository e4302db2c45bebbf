package enums

import (
	"fmt"
	"strings"
)

// PaymentStatus tracks whether an order has been paid.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusCompleted,
	PaymentStatusFailed,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// Rank orders payment statuses for forward-only merges: pending < failed < completed.
// A failed attempt can still be superseded by a later successful one.
func (p PaymentStatus) Rank() int {
	switch p {
	case PaymentStatusPending:
		return 0
	case PaymentStatusFailed:
		return 1
	case PaymentStatusCompleted:
		return 2
	}
	return -1
}

// Below lists the statuses a merge towards p may overwrite.
func (p PaymentStatus) Below() []PaymentStatus {
	below := []PaymentStatus{}
	for _, candidate := range validPaymentStatuses {
		if candidate.Rank() < p.Rank() {
			below = append(below, candidate)
		}
	}
	return below
}

// ParsePaymentStatus converts raw input into a PaymentStatus. "paid" is
// accepted as an alias of completed.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "paid" {
		return PaymentStatusCompleted, nil
	}
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
