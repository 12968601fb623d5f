// Package cart holds a shopper's line items and the totals derived from them.
package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/joao-fontenele/aquaflow/internal/domain"
	"github.com/joao-fontenele/aquaflow/internal/pricing"
	"github.com/joao-fontenele/aquaflow/internal/storage"
)

// Store owns one cart. Items and totals are replaced together under the
// lock, so readers never observe totals that disagree with the items.
// Persistence is best-effort: storage failures are logged, never returned.
type Store struct {
	mu     sync.RWMutex
	items  []domain.CartItem
	totals domain.Totals
	isOpen bool

	key    string
	kv     storage.Store
	logger *slog.Logger
	newID  func() string
}

func New(key string, kv storage.Store, logger *slog.Logger) *Store {
	return &Store{
		items:  []domain.CartItem{},
		totals: pricing.Calculate(nil),
		key:    key,
		kv:     kv,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// MaxQuantity bounds a single line. Adds that would go past it saturate.
const MaxQuantity = 999

// Load replaces the in-memory items with the persisted ones. Missing or
// corrupt data yields an empty cart.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, _ := s.readPersisted(ctx)
	s.replace(items)
}

// Refresh picks up changes persisted by other holders of the same key. When
// storage cannot be read the in-memory cart is kept.
func (s *Store) Refresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncLocked(ctx)
}

func (s *Store) syncLocked(ctx context.Context) {
	if items, ok := s.readPersisted(ctx); ok {
		s.replace(items)
	}
}

// readPersisted reports ok=false only when storage itself failed.
func (s *Store) readPersisted(ctx context.Context) ([]domain.CartItem, bool) {
	data, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to read persisted cart", "error", err, "key", s.key)
			return nil, false
		}
		return nil, true
	}

	var persisted domain.PersistedCart
	if err := json.Unmarshal(data, &persisted); err != nil {
		s.logger.Warn("discarding malformed persisted cart", "error", err, "key", s.key)
		return nil, true
	}

	items := make([]domain.CartItem, 0, len(persisted.Items))
	for _, item := range persisted.Items {
		if item.ID == "" || item.Quantity <= 0 {
			continue
		}
		item.Quantity = min(item.Quantity, MaxQuantity)
		items = append(items, item)
	}
	return items, true
}

// AddItem merges into the line with the same product and options, or starts
// a new one. Quantities are clamped to 1..MaxQuantity.
func (s *Store) AddItem(ctx context.Context, product domain.Product, quantity int, options *domain.SelectedOptions) domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncLocked(ctx)
	quantity = clampQuantity(quantity)
	items := s.cloneItems()
	idx := -1
	for i, item := range items {
		if item.Product.ID == product.ID && sameOptions(item.SelectedOptions, options) {
			idx = i
			break
		}
	}

	if idx >= 0 {
		items[idx].Quantity = min(items[idx].Quantity, MaxQuantity-quantity) + quantity
	} else {
		items = append(items, domain.CartItem{
			ID:              s.newID(),
			Product:         product,
			Quantity:        quantity,
			SelectedOptions: cloneOptions(options),
		})
		idx = len(items) - 1
	}

	s.replace(items)
	s.persist(ctx)
	return s.items[idx]
}

// RemoveItem deletes the line with id. Removing an unknown id is a no-op.
func (s *Store) RemoveItem(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncLocked(ctx)
	s.removeLocked(id)
	s.persist(ctx)
}

// UpdateQuantity sets the quantity of a line, capped at MaxQuantity.
// Quantities of zero or less remove the line.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncLocked(ctx)
	if quantity <= 0 {
		s.removeLocked(id)
		s.persist(ctx)
		return
	}

	items := s.cloneItems()
	for i := range items {
		if items[i].ID == id {
			items[i].Quantity = min(quantity, MaxQuantity)
		}
	}
	s.replace(items)
	s.persist(ctx)
}

// ClearCart empties the cart and removes its persisted entry.
func (s *Store) ClearCart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replace(nil)
	if err := s.kv.Delete(ctx, s.key); err != nil {
		s.logger.Error("failed to delete persisted cart", "error", err, "key", s.key)
	}
}

func (s *Store) OpenCart() {
	s.mu.Lock()
	s.isOpen = true
	s.mu.Unlock()
}

func (s *Store) CloseCart() {
	s.mu.Lock()
	s.isOpen = false
	s.mu.Unlock()
}

func (s *Store) ToggleCart() {
	s.mu.Lock()
	s.isOpen = !s.isOpen
	s.mu.Unlock()
}

// GetItem returns the first line for productID regardless of options.
func (s *Store) GetItem(productID string) (domain.CartItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.Product.ID == productID {
			return item, true
		}
	}
	return domain.CartItem{}, false
}

func (s *Store) Items() []domain.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneItems()
}

func (s *Store) Totals() domain.Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals
}

func (s *Store) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOpen
}

func (s *Store) Snapshot() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Cart{
		Items:  s.cloneItems(),
		IsOpen: s.isOpen,
		Totals: s.totals,
	}
}

func (s *Store) removeLocked(id string) {
	items := make([]domain.CartItem, 0, len(s.items))
	for _, item := range s.items {
		if item.ID != id {
			items = append(items, item)
		}
	}
	s.replace(items)
}

func (s *Store) replace(items []domain.CartItem) {
	if items == nil {
		items = []domain.CartItem{}
	}
	s.items = items
	s.totals = pricing.Calculate(items)
}

func (s *Store) cloneItems() []domain.CartItem {
	items := make([]domain.CartItem, len(s.items))
	copy(items, s.items)
	return items
}

func (s *Store) persist(ctx context.Context) {
	data, err := json.Marshal(domain.PersistedCart{Items: s.items})
	if err != nil {
		s.logger.Error("failed to encode cart", "error", err, "key", s.key)
		return
	}
	if err := s.kv.Set(ctx, s.key, data, 0); err != nil {
		s.logger.Error("failed to persist cart", "error", err, "key", s.key)
	}
}

// sameOptions compares options by their JSON encoding. A nil value and an
// empty value encode differently and therefore never merge.
func sameOptions(a, b *domain.SelectedOptions) bool {
	ea, errA := json.Marshal(a)
	eb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

func clampQuantity(q int) int {
	return max(1, min(q, MaxQuantity))
}

func cloneOptions(o *domain.SelectedOptions) *domain.SelectedOptions {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}
