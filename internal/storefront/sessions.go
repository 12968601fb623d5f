package storefront

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/joao-fontenele/aquaflow/internal/cart"
	"github.com/joao-fontenele/aquaflow/internal/checkout"
	"github.com/joao-fontenele/aquaflow/internal/storage"
)

// Session is one shopper's cart and checkout.
type Session struct {
	ID       string
	Cart     *cart.Store
	Checkout *checkout.Store
}

// Sessions constructs sessions on first use. A new session's cart is loaded
// from storage; its checkout starts from the initial state. Existing sessions
// re-read their cart on every Get so writes made by other instances sharing
// the store are visible.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	lastSeen map[string]time.Time
	group    singleflight.Group

	kv     storage.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewSessions(kv storage.Store, logger *slog.Logger) *Sessions {
	return &Sessions{
		sessions: make(map[string]*Session),
		lastSeen: make(map[string]time.Time),
		kv:       kv,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Sessions) Get(ctx context.Context, id string) *Session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		s.touch(id)
		sess.Cart.Refresh(context.WithoutCancel(ctx))
		return sess
	}

	v, _, _ := s.group.Do(id, func() (any, error) {
		s.mu.RLock()
		existing, ok := s.sessions[id]
		s.mu.RUnlock()
		if ok {
			return existing, nil
		}

		sess := &Session{
			ID:       id,
			Cart:     cart.New(cartKey(id), s.kv, s.logger.With("session_id", id)),
			Checkout: checkout.New(),
		}
		sess.Cart.Load(context.WithoutCancel(ctx))

		s.mu.Lock()
		s.sessions[id] = sess
		s.lastSeen[id] = s.now()
		s.mu.Unlock()

		s.logger.Info("session started", "session_id", id, "cart_items", len(sess.Cart.Items()))
		return sess, nil
	})
	return v.(*Session)
}

func (s *Sessions) touch(id string) {
	s.mu.Lock()
	if _, ok := s.sessions[id]; ok {
		s.lastSeen[id] = s.now()
	}
	s.mu.Unlock()
}

// Drop forgets the in-memory session. The persisted cart is kept and is
// loaded again on the next Get.
func (s *Sessions) Drop(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	delete(s.lastSeen, id)
	s.mu.Unlock()
}

// EvictIdle drops sessions not seen for longer than idle and returns how many
// were dropped. Their checkout progress is lost; the cart survives in storage.
func (s *Sessions) EvictIdle(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.RLock()
	var stale []string
	for id, seen := range s.lastSeen {
		if seen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range stale {
		s.Drop(id)
	}
	if len(stale) > 0 {
		s.logger.Info("evicted idle sessions", "count", len(stale), "remaining", s.Len())
	}
	return len(stale)
}

// Run evicts idle sessions every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle(idle)
		}
	}
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func cartKey(session string) string {
	return "aquaflow-cart:" + session
}
