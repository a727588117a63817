package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "@shop:cart")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStore_SetThenGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "@shop:cart", `[{"id":1,"amount":2}]`))
	require.NoError(t, store.Set(ctx, "@shop:cart", `[]`))

	v, err := store.Get(ctx, "@shop:cart")
	require.NoError(t, err)
	assert.Equal(t, `[]`, v)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, "k", "v")
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Get(ctx, "k")
		}()
	}
	wg.Wait()

	v, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
