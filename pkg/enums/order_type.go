package enums

import "fmt"

// OrderType distinguishes dine-in-now orders from scheduled ones.
type OrderType string

const (
	OrderTypeNow   OrderType = "now"
	OrderTypeLater OrderType = "later"
)

// IsValid reports whether the value is a known OrderType.
func (t OrderType) IsValid() bool {
	return t == OrderTypeNow || t == OrderTypeLater
}

// ParseOrderType converts raw input into an OrderType.
func ParseOrderType(value string) (OrderType, error) {
	t := OrderType(value)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid order type %q", value)
	}
	return t, nil
}
