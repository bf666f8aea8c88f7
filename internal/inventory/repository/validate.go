package repository

import (
	"fmt"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

// invalidResult explains why applying m to before broke the record invariants.
// A new reservation that no longer fits is a stock shortage, not a bad state.
func invalidResult(m *model.Mutation, before *model.InventoryRecord) error {
	if m.NewReservation != nil {
		return fmt.Errorf("%w: requested %d, available %d",
			inventory.ErrInsufficientStock, m.NewReservation.Quantity, before.AvailableQuantity())
	}
	return inventory.ErrInvalidState
}
