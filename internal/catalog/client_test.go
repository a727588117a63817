package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_cart/cart-store/internal/logger"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second, WithLogger(logger.Discard()))
}

func TestGetProduct_Success(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/5", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":5,"title":"Shoe","price":179.9,"image":"https://img/5.jpg"}`))
	}))

	p, err := client.GetProduct(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.ID)
	assert.JSONEq(t, `"Shoe"`, string(p.Attributes["title"]))
	assert.JSONEq(t, `179.9`, string(p.Attributes["price"]))
	assert.NotContains(t, p.Attributes, "id")
}

func TestGetProduct_NotFound(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())

	_, err := client.GetProduct(context.Background(), 42)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestGetProduct_InvalidJSON(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":`))
	}))

	_, err := client.GetProduct(context.Background(), 1)
	require.ErrorContains(t, err, "decode product 1")
}

func TestGetStock_Success(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/3", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]int{"id": 3, "amount": 7})
	}))

	s, err := client.GetStock(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.ID)
	assert.Equal(t, 7, s.Amount)
}

func TestGetStock_ServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.GetStock(context.Background(), 3)
	require.ErrorContains(t, err, "unexpected status 500")
}

func TestGetStock_ContextCancelled(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetStock(ctx, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetStock_CancelledCallerDoesNotFailOthers(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		w.Write([]byte(`{"id":1,"amount":4}`))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := client.GetStock(ctx, 1)
		assert.ErrorIs(t, err, context.Canceled)
	}()
	go func() {
		defer wg.Done()
		s, err := client.GetStock(context.Background(), 1)
		assert.NoError(t, err)
		assert.Equal(t, 4, s.Amount)
	}()

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	for i := 0; i < 5; i++ {
		_, err := client.GetProduct(context.Background(), 1)
		require.Error(t, err)
	}

	_, err := client.GetProduct(context.Background(), 1)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), calls.Load())
}

func TestBreaker_NotFoundDoesNotTrip(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())

	for i := 0; i < 10; i++ {
		_, err := client.GetProduct(context.Background(), 1)
		require.ErrorIs(t, err, ErrProductNotFound)
	}
}
