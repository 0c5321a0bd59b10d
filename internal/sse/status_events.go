package sse

import (
	"context"
	"sync"

	"ms-payment-verification/internal/models"
)

const clientBuffer = 10

type registry struct {
	mu      sync.RWMutex
	clients map[string][]chan models.OrderStatusEvent
}

func newRegistry() *registry {
	return &registry{clients: make(map[string][]chan models.OrderStatusEvent)}
}

func (r *registry) subscribe(ctx context.Context, key string) <-chan models.OrderStatusEvent {
	clientChan := make(chan models.OrderStatusEvent, clientBuffer)

	r.mu.Lock()
	r.clients[key] = append(r.clients[key], clientChan)
	r.mu.Unlock()

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		r.remove(key, clientChan)
	}()

	return clientChan
}

// emit sends under the read lock so remove cannot close a channel mid-send.
func (r *registry) emit(key string, e models.OrderStatusEvent) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dropped := 0
	for _, clientChan := range r.clients[key] {
		select {
		case clientChan <- e:
		default:
			// slow client, skip
			dropped++
		}
	}
	return dropped
}

func (r *registry) remove(key string, clientChan chan models.OrderStatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := r.clients[key]
	for i, ch := range clients {
		if ch == clientChan {
			r.clients[key] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(r.clients[key]) == 0 {
		delete(r.clients, key)
	}
}

func (r *registry) count(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients[key])
}

// StatusEmitter fans order status changes out to SSE clients watching an order or a whole event.
type StatusEmitter struct {
	orders *registry
	events *registry
}

func NewStatusEmitter() *StatusEmitter {
	return &StatusEmitter{
		orders: newRegistry(),
		events: newRegistry(),
	}
}

func (e *StatusEmitter) SubscribeToOrder(ctx context.Context, orderNumber string) <-chan models.OrderStatusEvent {
	return e.orders.subscribe(ctx, orderNumber)
}

func (e *StatusEmitter) SubscribeToEvent(ctx context.Context, eventID string) <-chan models.OrderStatusEvent {
	return e.events.subscribe(ctx, eventID)
}

// Emit never blocks. It returns how many slow clients missed the update.
func (e *StatusEmitter) Emit(evt models.OrderStatusEvent) int {
	dropped := e.orders.emit(evt.OrderNumber, evt)
	if evt.EventID != "" {
		dropped += e.events.emit(evt.EventID, evt)
	}
	return dropped
}

func (e *StatusEmitter) OrderClientCount(orderNumber string) int {
	return e.orders.count(orderNumber)
}

func (e *StatusEmitter) EventClientCount(eventID string) int {
	return e.events.count(eventID)
}
