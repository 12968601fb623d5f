package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), mr
}

func TestRedisStore_Get_Missing(t *testing.T) {
	store, _ := setupTestRedis(t)

	_, err := store.Get(context.Background(), "aquaflow-cart:nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_SetGet(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	err := store.Set(ctx, "aquaflow-cart:s1", []byte(`{"items":[]}`), 0)
	require.NoError(t, err)

	raw, err := mr.Get("aquaflow-cart:s1")
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, raw)
	assert.Equal(t, time.Duration(0), mr.TTL("aquaflow-cart:s1"))

	got, err := store.Get(ctx, "aquaflow-cart:s1")
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, string(got))
}

func TestRedisStore_SetWithTTL(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	err := store.Set(ctx, "lastOrder:s1", []byte(`{}`), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, mr.TTL("lastOrder:s1"))

	mr.FastForward(10 * time.Minute)

	_, err = store.Get(ctx, "lastOrder:s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Delete(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("k", "v"))
	require.NoError(t, store.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}

func TestRedisStore_ServerDown(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorContains(t, err, "redis get failed")
}

func TestRedisStore_Pop(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("lastOrder:s1", `{"id":"AQ1"}`))

	got, err := store.Pop(ctx, "lastOrder:s1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"AQ1"}`, string(got))
	assert.False(t, mr.Exists("lastOrder:s1"))

	_, err = store.Pop(ctx, "lastOrder:s1")
	assert.ErrorIs(t, err, ErrNotFound)
}
