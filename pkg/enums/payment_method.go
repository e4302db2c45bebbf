package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod names how the customer settles an order.
type PaymentMethod string

const (
	PaymentMethodMpesa   PaymentMethod = "mpesa"
	PaymentMethodPesapal PaymentMethod = "pesapal"
	PaymentMethodCash    PaymentMethod = "cash"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodMpesa,
	PaymentMethodPesapal,
	PaymentMethodCash,
}

// String implements fmt.Stringer.
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known PaymentMethod.
func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsGateway reports whether the method goes through an online payment provider.
func (m PaymentMethod) IsGateway() bool {
	return m == PaymentMethodMpesa || m == PaymentMethodPesapal
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentMethods {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
