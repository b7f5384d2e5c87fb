package handlers

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"studio/internal/events"
)

// Broker fans bus events out to SSE subscribers. Each subscriber gets a
// buffered channel; a subscriber whose buffer is full has that event dropped
// so one slow client never blocks the rest.
type Broker struct {
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
}

// NewBroker creates a broker and registers it on the bus.
func NewBroker(bus *events.Bus, logger zerolog.Logger) *Broker {
	b := &Broker{
		logger:      logger,
		subscribers: make(map[chan []byte]struct{}),
	}
	bus.Subscribe(func(ctx context.Context, e events.Event) error {
		b.broadcast(formatSSE(string(e.Type), e.JSON()))
		return nil
	})
	return b
}

// Subscribe returns a channel that receives SSE-formatted events. The caller
// must call Unsubscribe when done.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) broadcast(event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full, drop this event for them.
		}
	}
}

// formatSSE renders a Server-Sent Events frame.
func formatSSE(eventType string, data []byte) []byte {
	out := make([]byte, 0, len(eventType)+len(data)+16)
	out = append(out, "event: "...)
	out = append(out, eventType...)
	out = append(out, "\ndata: "...)
	out = append(out, data...)
	out = append(out, "\n\n"...)
	return out
}
