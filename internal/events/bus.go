package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Subscriber receives every event emitted on the bus. Subscribers filter by
// JobID/Type themselves. A returned error is logged and does not affect
// delivery to other subscribers.
type Subscriber func(ctx context.Context, e Event) error

// Subscription is the handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	id uint64
	fn Subscriber
}

// Bus is an in-process broadcast channel. Emit delivers to a snapshot of the
// subscriber list taken under the lock; delivery itself runs outside the lock
// so a slow subscriber never blocks registration.
type Bus struct {
	logger zerolog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   []*Subscription
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers fn for all future events and returns its handle.
func (b *Bus) Subscribe(fn Subscriber) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, fn: fn}
	b.subs = append(b.subs, sub)
	return sub
}

// Unsubscribe removes a subscription. Unknown or already-removed handles are
// a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == sub.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers e to every subscriber registered at call time, sequentially
// in registration order. Subscriber errors and panics are logged and do not
// propagate to the emitter or block remaining subscribers.
func (b *Bus) Emit(ctx context.Context, e Event) {
	b.mu.Lock()
	snapshot := make([]*Subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, sub := range snapshot {
		b.deliver(ctx, sub, e)
	}
}

func (b *Bus) deliver(ctx context.Context, sub *Subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("job_id", e.JobID).
				Str("event", string(e.Type)).
				Msg(fmt.Sprintf("events: subscriber panic: %v", r))
		}
	}()
	if err := sub.fn(ctx, e); err != nil {
		b.logger.Warn().
			Err(err).
			Str("job_id", e.JobID).
			Str("event", string(e.Type)).
			Msg("events: subscriber error")
	}
}
