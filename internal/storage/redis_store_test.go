package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisStore instance
func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client), mr
}

func TestRedisStore_GetMissing(t *testing.T) {
	store, _ := setupTestRedis(t)

	_, err := store.Get(context.Background(), "@shop:cart")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisStore_SetStoresPlainStringWithoutTTL(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "@shop:cart", `[{"id":3,"amount":1}]`))

	stored, err := mr.Get("@shop:cart")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":3,"amount":1}]`, stored)
	assert.Zero(t, mr.TTL("@shop:cart"))
}

func TestRedisStore_GetReturnsStoredValue(t *testing.T) {
	store, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("@shop:cart", `[]`))

	v, err := store.Get(context.Background(), "@shop:cart")
	require.NoError(t, err)
	assert.Equal(t, `[]`, v)
}

func TestRedisStore_ServerDown(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	_, err := store.Get(context.Background(), "@shop:cart")
	require.ErrorContains(t, err, "redis get failed")

	err = store.Set(context.Background(), "@shop:cart", "[]")
	require.ErrorContains(t, err, "redis set failed")
}
