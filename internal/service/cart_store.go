package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fjod/go_cart/cart-store/internal/domain"
	"github.com/fjod/go_cart/cart-store/internal/notify"
	"github.com/fjod/go_cart/cart-store/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/fjod/go_cart/cart-store/internal/service")

type ProductCatalog interface {
	GetProduct(ctx context.Context, productID int64) (domain.Product, error)
}

type StockChecker interface {
	GetStock(ctx context.Context, productID int64) (domain.StockInfo, error)
}

type UpdateProductAmount struct {
	ProductID int64
	Amount    int
}

type Dependencies struct {
	Storage  storage.KeyValueStore
	Catalog  ProductCatalog
	Stock    StockChecker
	Notifier notify.Sink
	Logger   *slog.Logger
}

// CartStore holds the shopper's cart and writes it through to storage after
// every change. Mutations are serialized: each one holds writeMu across its
// stock and catalog lookups, so concurrent calls never work on a stale cart.
type CartStore struct {
	key      string
	storage  storage.KeyValueStore
	catalog  ProductCatalog
	stock    StockChecker
	notifier notify.Sink
	log      *slog.Logger

	writeMu sync.Mutex

	mu   sync.RWMutex
	cart domain.Cart

	subs *broadcaster
}

// NewCartStore restores the cart persisted under key. A missing value gives an
// empty cart; so does a value that cannot be decoded or breaks the cart
// invariants, in which case a warning is logged and the stored value is left
// alone until the next commit overwrites it.
func NewCartStore(ctx context.Context, key string, deps Dependencies) (*CartStore, error) {
	if key == "" {
		return nil, errors.New("storage key must not be empty")
	}
	if deps.Storage == nil || deps.Catalog == nil || deps.Stock == nil || deps.Notifier == nil {
		return nil, errors.New("storage, catalog, stock and notifier are required")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &CartStore{
		key:      key,
		storage:  deps.Storage,
		catalog:  deps.Catalog,
		stock:    deps.Stock,
		notifier: deps.Notifier,
		log:      log.With("component", "cart_store", "storage_key", key),
		subs:     newBroadcaster(),
	}

	cart, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.cart = cart
	return s, nil
}

func (s *CartStore) load(ctx context.Context) (domain.Cart, error) {
	raw, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return domain.Cart{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		s.log.WarnContext(ctx, "stored cart is corrupt, starting empty", "error", err)
		return domain.Cart{}, nil
	}
	if err := cart.Validate(); err != nil {
		s.log.WarnContext(ctx, "stored cart is invalid, starting empty", "error", err)
		return domain.Cart{}, nil
	}
	if cart == nil {
		cart = domain.Cart{}
	}
	s.log.InfoContext(ctx, "cart restored", "items", len(cart))
	return cart, nil
}

// Cart returns a copy of the current cart.
func (s *CartStore) Cart() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

// Subscribe delivers a snapshot after every commit until cancel is called.
func (s *CartStore) Subscribe(buffer int) (<-chan domain.Cart, func()) {
	return s.subs.subscribe(buffer)
}

// Close ends all subscriptions so long-lived readers such as event streams
// can return. The cart itself stays usable.
func (s *CartStore) Close() {
	s.subs.closeAll()
}

// AddProduct puts one more unit of productID into the cart, fetching the
// product metadata the first time the product is added.
func (s *CartStore) AddProduct(ctx context.Context, productID int64) error {
	ctx, span := tracer.Start(ctx, "CartStore.AddProduct",
		trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	updated := s.Cart()
	idx := updated.IndexOf(productID)

	stock, err := s.stock.GetStock(ctx, productID)
	if err != nil {
		return s.fail(ctx, span, notify.MsgAddFailed, fmt.Errorf("add product %d: %w", productID, err))
	}

	current := 0
	if idx >= 0 {
		current = updated[idx].Amount
	}
	newAmount := current + 1
	if newAmount > stock.Amount {
		return s.reject(ctx, span, productID, newAmount, stock.Amount)
	}

	if idx >= 0 {
		updated[idx].Amount = newAmount
	} else {
		product, err := s.catalog.GetProduct(ctx, productID)
		if err != nil {
			return s.fail(ctx, span, notify.MsgAddFailed, fmt.Errorf("add product %d: %w", productID, err))
		}
		item := product.LineItem(1)
		item.ID = productID
		updated = append(updated, item)
	}

	if err := s.commit(ctx, updated); err != nil {
		return s.fail(ctx, span, notify.MsgAddFailed, fmt.Errorf("add product %d: %w", productID, err))
	}
	s.log.DebugContext(ctx, "product added", "product_id", productID, "amount", newAmount)
	return nil
}

// RemoveProduct drops the line item for productID.
func (s *CartStore) RemoveProduct(ctx context.Context, productID int64) error {
	ctx, span := tracer.Start(ctx, "CartStore.RemoveProduct",
		trace.WithAttributes(attribute.Int64("product.id", productID)))
	defer span.End()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	updated := s.Cart()
	idx := updated.IndexOf(productID)
	if idx < 0 {
		return s.fail(ctx, span, notify.MsgRemoveFailed,
			fmt.Errorf("remove product %d: %w", productID, ErrItemNotFound))
	}
	updated = append(updated[:idx], updated[idx+1:]...)

	if err := s.commit(ctx, updated); err != nil {
		return s.fail(ctx, span, notify.MsgRemoveFailed, fmt.Errorf("remove product %d: %w", productID, err))
	}
	s.log.DebugContext(ctx, "product removed", "product_id", productID)
	return nil
}

// UpdateProductAmount sets the amount of a product already in the cart.
// Non-positive amounts are ignored.
func (s *CartStore) UpdateProductAmount(ctx context.Context, req UpdateProductAmount) error {
	if req.Amount <= 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "CartStore.UpdateProductAmount",
		trace.WithAttributes(
			attribute.Int64("product.id", req.ProductID),
			attribute.Int("product.amount", req.Amount),
		))
	defer span.End()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stock, err := s.stock.GetStock(ctx, req.ProductID)
	if err != nil {
		return s.fail(ctx, span, notify.MsgUpdateFailed,
			fmt.Errorf("update product %d: %w", req.ProductID, err))
	}
	if req.Amount > stock.Amount {
		return s.reject(ctx, span, req.ProductID, req.Amount, stock.Amount)
	}

	updated := s.Cart()
	idx := updated.IndexOf(req.ProductID)
	if idx < 0 {
		return s.fail(ctx, span, notify.MsgUpdateFailed,
			fmt.Errorf("update product %d: %w", req.ProductID, ErrItemNotFound))
	}
	updated[idx].Amount = req.Amount

	if err := s.commit(ctx, updated); err != nil {
		return s.fail(ctx, span, notify.MsgUpdateFailed,
			fmt.Errorf("update product %d: %w", req.ProductID, err))
	}
	s.log.DebugContext(ctx, "product amount updated", "product_id", req.ProductID, "amount", req.Amount)
	return nil
}

// commit persists first and only then swaps the in-memory cart, so a failed
// write leaves both sides as they were.
func (s *CartStore) commit(ctx context.Context, cart domain.Cart) error {
	if cart == nil {
		cart = domain.Cart{}
	}
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := s.storage.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}

	s.mu.Lock()
	s.cart = cart
	s.mu.Unlock()

	s.subs.publish(cart)
	return nil
}

func (s *CartStore) reject(ctx context.Context, span trace.Span, productID int64, requested, available int) error {
	span.SetAttributes(attribute.Int("stock.available", available))
	span.SetStatus(codes.Error, "insufficient stock")
	s.notifier.ShowError(ctx, notify.MsgOutOfStock)
	s.log.InfoContext(ctx, "requested amount exceeds stock",
		"product_id", productID, "requested", requested, "available", available)
	return fmt.Errorf("product %d: %w: requested %d, available %d",
		productID, ErrInsufficientStock, requested, available)
}

func (s *CartStore) fail(ctx context.Context, span trace.Span, message string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, message)
	s.notifier.ShowError(ctx, message)
	s.log.WarnContext(ctx, "cart operation failed", "error", err)
	return err
}
