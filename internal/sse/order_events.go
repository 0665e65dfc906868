// Package sse fans order updates out to checkout pages waiting on a stream.
package sse

import (
	"context"
	"sync"

	"ms-pettag/internal/models"
)

// OrderEventEmitter keeps in-process subscriptions keyed by order id.
// Delivery is best effort: a slow client misses updates rather than
// blocking the payment path.
type OrderEventEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan models.Order
}

func NewOrderEventEmitter() *OrderEventEmitter {
	return &OrderEventEmitter{clients: make(map[string][]chan models.Order)}
}

// Subscribe returns a channel of updates for orderID. It is closed once ctx ends.
func (e *OrderEventEmitter) Subscribe(ctx context.Context, orderID string) <-chan models.Order {
	ch := make(chan models.Order, 10)

	e.mu.Lock()
	e.clients[orderID] = append(e.clients[orderID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(orderID, ch)
	}()
	return ch
}

// NotifyOrder sends a snapshot of o to every subscriber of o.ID.
func (e *OrderEventEmitter) NotifyOrder(o *models.Order) {
	if o == nil {
		return
	}
	snapshot := *o

	// the read lock keeps remove from closing a channel mid-send
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.clients[o.ID] {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (e *OrderEventEmitter) remove(orderID string, ch chan models.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[orderID]
	for i, c := range clients {
		if c == ch {
			e.clients[orderID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[orderID]) == 0 {
		delete(e.clients, orderID)
	}
}

func (e *OrderEventEmitter) ClientCount(orderID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[orderID])
}
