package orders

import (
	"fmt"

	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
)

// CheckStaffTransition reports whether staff may move an order from current to
// target given its payment status. A nil error with noop=true means the order
// is already there.
func CheckStaffTransition(current, target enums.OrderStatus, payment enums.PaymentStatus) (noop bool, err error) {
	if !target.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", target))
	}
	if current == target {
		return true, nil
	}
	if current.IsTerminal() {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is already %s", current))
	}
	if payment == enums.PaymentStatusCompleted && !target.IsPaidCompatible() {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("a paid order cannot move to %s", target))
	}
	return false, nil
}

// SupersedesPayment reports whether target may overwrite current under the
// forward-only payment merge.
func SupersedesPayment(current, target enums.PaymentStatus) bool {
	return target.Rank() > current.Rank()
}

// IsForward reports whether target advances current along the kitchen
// progression. Cancelling a non-terminal order counts as forward.
func IsForward(current, target enums.OrderStatus) bool {
	if current.IsTerminal() {
		return false
	}
	if target == enums.OrderStatusCancelled {
		return true
	}
	return target.Rank() > current.Rank()
}
