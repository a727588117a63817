package service

import (
	"sync"

	"github.com/fjod/go_cart/cart-store/internal/domain"
)

// broadcaster fans committed carts out to subscribers. A slow subscriber
// only ever sees the latest snapshots; publishing never blocks.
type broadcaster struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan domain.Cart
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan domain.Cart)}
}

func (b *broadcaster) subscribe(buffer int) (<-chan domain.Cart, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.Cart, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		// closeAll may have already closed it
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// closeAll ends every subscription and refuses new ones.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *broadcaster) publish(cart domain.Cart) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		snapshot := cart.Clone()
		select {
		case ch <- snapshot:
		default:
			// drop the oldest queued snapshot to make room
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
