package checkout

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tableside-backend/internal/cart"
	"github.com/angelmondragon/tableside-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
	"github.com/google/uuid"
)

// buildLines reprices cart items from the live menu. Items that were removed
// or switched off since they were added block the checkout.
func buildLines(ctx context.Context, menu menuLookup, restaurantID uuid.UUID, items []cart.Item) ([]orders.Line, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	lines := make([]orders.Line, 0, len(items))
	for _, item := range items {
		menuItemID, err := uuid.Parse(item.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("cart item %q is not a menu item", item.ID))
		}
		current, err := menu.GetMenuItem(ctx, restaurantID, menuItemID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("%s is no longer on the menu", item.Name))
			}
			return nil, err
		}
		if !current.Available {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("%s is not available right now", current.Name))
		}
		lines = append(lines, orders.Line{
			MenuItemID:          current.ID,
			Name:                current.Name,
			UnitPrice:           current.Price,
			Quantity:            item.Quantity,
			Customizations:      item.Customizations,
			SpecialInstructions: item.SpecialInstructions,
		})
	}
	return lines, nil
}
