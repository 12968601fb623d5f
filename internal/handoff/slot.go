// Package handoff passes a freshly placed order from the payment step to the
// confirmation step. Each session has one short-lived slot that is read and
// cleared exactly once.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joao-fontenele/aquaflow/internal/domain"
	"github.com/joao-fontenele/aquaflow/internal/storage"
)

const DefaultTTL = 10 * time.Minute

type Slot struct {
	kv       storage.Store
	notifier Notifier
	ttl      time.Duration
	logger   *slog.Logger
}

func NewSlot(kv storage.Store, notifier Notifier, ttl time.Duration, logger *slog.Logger) *Slot {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Slot{
		kv:       kv,
		notifier: notifier,
		ttl:      ttl,
		logger:   logger,
	}
}

// Put stores order in the session's slot, replacing any previous one, and
// wakes waiting resolvers. A failed notification is logged; waiters fall back
// to their own timer.
func (s *Slot) Put(ctx context.Context, session string, order domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	if err := s.kv.Set(ctx, slotKey(session), data, s.ttl); err != nil {
		return fmt.Errorf("store order in hand-off slot: %w", err)
	}

	if err := s.notifier.Notify(ctx, session); err != nil {
		s.logger.Warn("failed to notify hand-off waiters", "error", err, "session", session)
	}
	return nil
}

// Take reads and clears the session's slot. An empty slot, or one holding
// something that does not decode as an order, reports ok=false.
func (s *Slot) Take(ctx context.Context, session string) (domain.Order, bool, error) {
	data, err := s.kv.Pop(ctx, slotKey(session))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, fmt.Errorf("read hand-off slot: %w", err)
	}

	var order domain.Order
	if err := json.Unmarshal(data, &order); err != nil {
		s.logger.Warn("discarding malformed hand-off order", "error", err, "session", session)
		return domain.Order{}, false, nil
	}
	return order, true, nil
}

func (s *Slot) Subscribe(ctx context.Context, session string) (<-chan struct{}, func(), error) {
	return s.notifier.Subscribe(ctx, session)
}

func slotKey(session string) string {
	return "lastOrder:" + session
}
