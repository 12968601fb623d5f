// Package storage provides the key-value stores backing persisted carts and
// the order hand-off slot.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Store is a byte-oriented key-value store. A ttl of zero means the entry
// never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Pop atomically reads and deletes key.
	Pop(ctx context.Context, key string) ([]byte, error)
}
