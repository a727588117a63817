package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/fjod/go_cart/cart-store/internal/domain"
	"github.com/fjod/go_cart/cart-store/internal/logger"
	"github.com/fjod/go_cart/cart-store/internal/storage"
	"github.com/stretchr/testify/require"
)

const testKey = "@RocketShoes:cart"

type mockStock struct {
	m      sync.Mutex
	amount map[int64]int
	err    error
	calls  int
}

func (s *mockStock) GetStock(_ context.Context, productID int64) (domain.StockInfo, error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.calls++
	if s.err != nil {
		return domain.StockInfo{}, s.err
	}
	amount, ok := s.amount[productID]
	if !ok {
		return domain.StockInfo{}, errors.New("stock not found")
	}
	return domain.StockInfo{ID: productID, Amount: amount}, nil
}

func (s *mockStock) callCount() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.calls
}

type mockCatalog struct {
	m        sync.Mutex
	products map[int64]string // product id -> raw JSON
	err      error
	calls    int
}

func (c *mockCatalog) GetProduct(_ context.Context, productID int64) (domain.Product, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.calls++
	if c.err != nil {
		return domain.Product{}, c.err
	}
	raw, ok := c.products[productID]
	if !ok {
		return domain.Product{}, errors.New("product not found")
	}
	var p domain.Product
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

type recordingSink struct {
	m        sync.Mutex
	messages []string
}

func (r *recordingSink) ShowError(_ context.Context, message string) {
	r.m.Lock()
	defer r.m.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recordingSink) all() []string {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]string(nil), r.messages...)
}

// flakyStorage wraps a MemoryStore and counts writes; setErr makes Set fail.
type flakyStorage struct {
	*storage.MemoryStore
	m      sync.Mutex
	setErr error
	getErr error
	sets   int
}

func newFlakyStorage() *flakyStorage {
	return &flakyStorage{MemoryStore: storage.NewMemoryStore()}
}

func (f *flakyStorage) Get(ctx context.Context, key string) (string, error) {
	f.m.Lock()
	err := f.getErr
	f.m.Unlock()
	if err != nil {
		return "", err
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyStorage) Set(ctx context.Context, key, value string) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func (f *flakyStorage) setCount() int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.sets
}

type fixture struct {
	store   *CartStore
	storage *flakyStorage
	stock   *mockStock
	catalog *mockCatalog
	sink    *recordingSink
}

// newFixture builds a CartStore whose storage already holds persisted (if non-empty).
func newFixture(t *testing.T, persisted string) *fixture {
	t.Helper()
	f := &fixture{
		storage: newFlakyStorage(),
		stock:   &mockStock{amount: map[int64]int{}},
		catalog: &mockCatalog{products: map[int64]string{}},
		sink:    &recordingSink{},
	}
	if persisted != "" {
		require.NoError(t, f.storage.MemoryStore.Set(context.Background(), testKey, persisted))
	}

	store, err := NewCartStore(context.Background(), testKey, Dependencies{
		Storage:  f.storage,
		Catalog:  f.catalog,
		Stock:    f.stock,
		Notifier: f.sink,
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)
	f.store = store
	return f
}

func (f *fixture) persisted(t *testing.T) domain.Cart {
	t.Helper()
	raw, err := f.storage.MemoryStore.Get(context.Background(), testKey)
	require.NoError(t, err)
	var cart domain.Cart
	require.NoError(t, json.Unmarshal([]byte(raw), &cart))
	return cart
}

func (f *fixture) rawPersisted(t *testing.T) string {
	t.Helper()
	raw, err := f.storage.MemoryStore.Get(context.Background(), testKey)
	require.NoError(t, err)
	return raw
}

// requireInSync checks the persisted cart decodes to exactly the in-memory cart.
func (f *fixture) requireInSync(t *testing.T) {
	t.Helper()
	mem := f.store.Cart()
	stored := f.persisted(t)
	require.Len(t, stored, len(mem))
	for i := range mem {
		require.True(t, mem[i].Equal(stored[i]), "item %d differs: memory %+v, stored %+v", i, mem[i], stored[i])
	}
}
