package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/cart-store/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrStockNotFound   = errors.New("stock not found")
)

const maxBodySize = 1 << 20 // 1MB

// Client talks to the storefront API that serves product metadata and stock.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a missing product says nothing about the health of the API
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrStockNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// GetProduct fetches GET /products/{id}.
func (c *Client) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	body, err := c.get(ctx, fmt.Sprintf("/products/%d", productID), ErrProductNotFound)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %d: %w", productID, err)
	}

	var p domain.Product
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %d: %w", productID, err)
	}
	return p, nil
}

// GetStock fetches GET /stock/{id}.
func (c *Client) GetStock(ctx context.Context, productID int64) (domain.StockInfo, error) {
	body, err := c.get(ctx, fmt.Sprintf("/stock/%d", productID), ErrStockNotFound)
	if err != nil {
		return domain.StockInfo{}, fmt.Errorf("get stock %d: %w", productID, err)
	}

	var s domain.StockInfo
	if err := json.Unmarshal(body, &s); err != nil {
		return domain.StockInfo{}, fmt.Errorf("decode stock %d: %w", productID, err)
	}
	return s, nil
}

func (c *Client) get(ctx context.Context, path string, notFound error) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, notFound
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return body, nil
	})
}
