package storage

import (
	"context"
	"errors"
)

// KeyValueStore is the persistent string store the cart is written to.
// It plays the role browser local storage plays for a storefront page.
type KeyValueStore interface {
	// Get returns ErrKeyNotFound when nothing was stored under key.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

var ErrKeyNotFound = errors.New("key not found")
