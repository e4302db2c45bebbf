// Package cart holds a customer's line items for one restaurant and keeps a
// persisted copy in a key-value store after every mutation.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is one cart line. Lines are unique by (ID, Customizations).
type Item struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	Quantity            int             `json:"quantity"`
	Customizations      *string         `json:"customizations,omitempty"`
	SpecialInstructions *string         `json:"special_instructions,omitempty"`
}

// LineTotal is UnitPrice x Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i Item) matches(id string, customizations *string) bool {
	return i.ID == id && sameCustomizations(i.Customizations, customizations)
}

// Key is the storage key of a restaurant's cart.
func Key(restaurantID uuid.UUID) string {
	return "cart_" + restaurantID.String()
}

// Store is the cart for one restaurant. Each mutation is applied and
// persisted under the same lock; a failed write leaves the previous state.
type Store struct {
	mu           sync.Mutex
	restaurantID uuid.UUID
	storage      Storage
	items        []Item
}

// Load builds a Store and rehydrates it from storage. An unreadable blob is
// treated as an empty cart.
func Load(ctx context.Context, storage Storage, restaurantID uuid.UUID) (*Store, error) {
	if storage == nil {
		return nil, fmt.Errorf("cart storage required")
	}
	s := &Store{restaurantID: restaurantID, storage: storage}

	raw, ok, err := storage.Get(ctx, Key(restaurantID))
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if ok && raw != "" {
		var items []Item
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			s.items = sanitize(items)
		}
	}
	return s, nil
}

// RestaurantID returns the restaurant the cart belongs to.
func (s *Store) RestaurantID() uuid.UUID {
	return s.restaurantID
}

// Add increments the matching line or appends the item with quantity 1.
func (s *Store) Add(ctx context.Context, item Item) error {
	item.Customizations = normalizeOptional(item.Customizations)
	item.SpecialInstructions = normalizeOptional(item.SpecialInstructions)

	return s.mutate(ctx, func(items []Item) []Item {
		for i := range items {
			if items[i].matches(item.ID, item.Customizations) {
				items[i].Quantity++
				return items
			}
		}
		item.Quantity = 1
		return append(items, item)
	})
}

// Remove deletes the line matching (id, customizations).
func (s *Store) Remove(ctx context.Context, id string, customizations *string) error {
	customizations = normalizeOptional(customizations)
	return s.mutate(ctx, func(items []Item) []Item {
		out := items[:0]
		for _, it := range items {
			if !it.matches(id, customizations) {
				out = append(out, it)
			}
		}
		return out
	})
}

// UpdateQuantity sets the quantity of a line; qty <= 0 removes it.
func (s *Store) UpdateQuantity(ctx context.Context, id string, qty int, customizations *string) error {
	if qty <= 0 {
		return s.Remove(ctx, id, customizations)
	}
	customizations = normalizeOptional(customizations)
	return s.mutate(ctx, func(items []Item) []Item {
		for i := range items {
			if items[i].matches(id, customizations) {
				items[i].Quantity = qty
			}
		}
		return items
	})
}

// Clear empties the cart and deletes the persisted copy.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Delete(ctx, Key(s.restaurantID)); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.items = nil
	return nil
}

// Items returns a copy of the current lines.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

// Total is the sum of unit_price x quantity over all lines.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Count is the sum of quantities.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, it := range s.items {
		count += it.Quantity
	}
	return count
}

func (s *Store) mutate(ctx context.Context, apply func([]Item) []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := apply(cloneItems(s.items))
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.storage.Set(ctx, Key(s.restaurantID), string(payload)); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	s.items = next
	return nil
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// sanitize drops lines a stale client could have written with a bad quantity.
func sanitize(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.ID == "" || it.Quantity < 1 {
			continue
		}
		it.Customizations = normalizeOptional(it.Customizations)
		out = append(out, it)
	}
	return out
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sameCustomizations(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
