package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/cart-store/internal/domain"
	"github.com/fjod/go_cart/cart-store/internal/notify"
	"github.com/fjod/go_cart/cart-store/internal/service"
	"github.com/go-chi/chi/v5"
)

// CartStore is what the handlers need from service.CartStore.
type CartStore interface {
	Cart() domain.Cart
	Subscribe(buffer int) (<-chan domain.Cart, func())
	AddProduct(ctx context.Context, productID int64) error
	RemoveProduct(ctx context.Context, productID int64) error
	UpdateProductAmount(ctx context.Context, req service.UpdateProductAmount) error
}

type CartHandler struct {
	store   CartStore
	timeout time.Duration
	log     *slog.Logger
}

func NewCartHandler(store CartStore, timeout time.Duration, log *slog.Logger) *CartHandler {
	return &CartHandler{
		store:   store,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
}

type UpdateAmountRequestDTO struct {
	Amount int `json:"amount"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.store.Cart())
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", "")
		return
	}
	if req.ProductID <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive", "")
		return
	}

	if err := h.store.AddProduct(ctx, req.ProductID); err != nil {
		h.handleCartError(w, err, notify.MsgAddFailed)
		return
	}
	h.respondJSON(w, http.StatusOK, h.store.Cart())
}

func (h *CartHandler) UpdateAmount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := h.productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateAmountRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", "")
		return
	}

	// non-positive amounts are accepted and ignored by the store
	err := h.store.UpdateProductAmount(ctx, service.UpdateProductAmount{
		ProductID: productID,
		Amount:    req.Amount,
	})
	if err != nil {
		h.handleCartError(w, err, notify.MsgUpdateFailed)
		return
	}
	h.respondJSON(w, http.StatusOK, h.store.Cart())
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := h.productIDParam(w, r)
	if !ok {
		return
	}

	if err := h.store.RemoveProduct(ctx, productID); err != nil {
		h.handleCartError(w, err, notify.MsgRemoveFailed)
		return
	}
	h.respondJSON(w, http.StatusOK, h.store.Cart())
}

// Events streams the cart as server-sent events: the current cart first,
// then one event per commit until the client goes away.
func (h *CartHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported", "")
		return
	}

	updates, cancel := h.store.Subscribe(8)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, h.store.Cart()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case cart, open := <-updates:
			if !open {
				return
			}
			if err := writeEvent(w, cart); err != nil {
				h.log.DebugContext(r.Context(), "event stream closed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, cart domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: cart\ndata: %s\n\n", data)
	return err
}

func (h *CartHandler) productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productIDStr := chi.URLParam(r, "product_id")
	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer", "")
		return 0, false
	}
	return productID, true
}

func (h *CartHandler) handleCartError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, service.ErrInsufficientStock):
		h.respondError(w, http.StatusConflict, "insufficient_stock", notify.MsgOutOfStock, err.Error())
	case errors.Is(err, service.ErrItemNotFound):
		h.respondError(w, http.StatusNotFound, "not_found", message, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusGatewayTimeout, "timeout", message, "")
	default:
		h.respondError(w, http.StatusBadGateway, "upstream_error", message, "")
	}
}

func (h *CartHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

func (h *CartHandler) respondError(w http.ResponseWriter, status int, code, message, details string) {
	h.respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
