// Package bus implements the single multi-producer multi-consumer fan-out
// channel described in spec §4.F: a fixed-capacity broadcast of
// model.BusMessage values, FIFO per producer to each subscriber, with a
// drop-oldest-and-log overflow policy instead of back-pressuring producers.
//
// The shape is grounded on the in-process event bus pattern used for
// cross-task fan-out: a map of subscriber channels guarded by a mutex,
// non-blocking publish with an explicit default branch so a slow
// subscriber never stalls the others.
package bus

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pjatk21/sigma-api/internal/model"
)

// DefaultCapacity is the bus's fixed buffer size (spec §4.F, §5: "≈500 messages").
const DefaultCapacity = 500

// Bus is the fan-out channel. The zero value is not usable; use New.
type Bus struct {
	mu       sync.RWMutex
	capacity int
	subs     map[chan model.BusMessage]*subscriber
	logger   *zap.Logger
}

type subscriber struct {
	skipped atomic.Int64
}

// New returns a Bus with the given per-subscriber buffer capacity.
func New(capacity int, logger *zap.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[chan model.BusMessage]*subscriber),
		logger:   logger,
	}
}

// Subscribe registers a new subscriber and returns its receive-only channel.
// Call Unsubscribe with the same channel when done.
func (b *Bus) Subscribe() <-chan model.BusMessage {
	ch := make(chan model.BusMessage, b.capacity)
	b.mu.Lock()
	b.subs[ch] = &subscriber{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber's channel. Safe to call once
// per channel returned by Subscribe.
func (b *Bus) Unsubscribe(ch <-chan model.BusMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sc, sub := range b.subs {
		if (<-chan model.BusMessage)(sc) == ch {
			delete(b.subs, sc)
			close(sc)
			_ = sub
			return
		}
	}
}

// Publish sends msg to every current subscriber. A subscriber whose buffer
// is full does not block the others: the *oldest* buffered message for that
// subscriber is evicted to make room, its skip counter increments, and the
// drop is logged with the running total — so a lagging subscriber's next
// receives return its most recent messages, not its oldest (spec §4.F, §7
// "Bus subscriber lag", §8 scenario 3).
func (b *Bus) Publish(msg model.BusMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, sub := range b.subs {
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
			default:
			}
			skipped := sub.skipped.Add(1)
			if b.logger != nil {
				b.logger.Warn("bus subscriber lagging, dropping oldest buffered message",
					zap.Int64("skipped_total", skipped),
				)
			}
			select {
			case ch <- msg:
			default:
				// Another publisher raced us and refilled the buffer between
				// our evict and this send; the subscriber is still lagging,
				// so drop msg itself rather than spin or block.
			}
		}
	}
}

// SubscriberCount returns the number of currently registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Subscribers observe a closed
// channel from their receive loop and exit (spec §4.F "Closure").
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}
