// internal/progress/progress.go
package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
)

// DefaultBufferSize is the per-subscriber event buffer used when the hub is
// constructed with a non-positive size.
const DefaultBufferSize = 256

// Hub broadcasts pipeline progress events to any number of subscribers.
// Publish never blocks: each subscriber owns a bounded buffer, and when a
// buffer is full the oldest queued event is evicted to make room. A stalled
// consumer therefore sees the most recent window of events, and can detect
// the gap through the monotonic Seq numbers.
type Hub struct {
	logger     *zap.Logger
	bufferSize int

	mu      sync.Mutex
	subs    map[uint64]chan schemas.ProgressEvent
	nextSub uint64
	seq     uint64
	dropped uint64
	closed  bool

	closeOnce sync.Once
}

// NewHub builds a Hub with the given per-subscriber buffer size.
func NewHub(logger *zap.Logger, bufferSize int) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		logger:     logger.Named("progress"),
		bufferSize: bufferSize,
		subs:       make(map[uint64]chan schemas.ProgressEvent),
	}
}

// Publish assigns the event its sequence number and fans it out. It never
// blocks and is a no-op after Close. A zero Timestamp is stamped at publish.
func (h *Hub) Publish(ev schemas.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.seq++
	ev.Seq = h.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	for id, ch := range h.subs {
		// Sends happen under the hub lock, so this loop is the only sender
		// and eviction always frees a slot for the pending event.
		for {
			select {
			case ch <- ev:
			default:
				select {
				case old := <-ch:
					h.dropped++
					h.logger.Debug("Subscriber buffer full, dropped oldest event",
						zap.Uint64("subscriber", id),
						zap.Uint64("evicted_seq", old.Seq),
					)
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribe registers a new consumer. The returned cancel func detaches the
// subscriber and closes its channel; calling it more than once is safe.
// Subscribing to a closed hub yields an already-closed channel.
func (h *Hub) Subscribe() (<-chan schemas.ProgressEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan schemas.ProgressEvent)
		close(ch)
		return ch, func() {}
	}

	id := h.nextSub
	h.nextSub++
	ch := make(chan schemas.ProgressEvent, h.bufferSize)
	h.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			// Close may have detached us first; the channel is already
			// closed in that case.
			if _, ok := h.subs[id]; !ok {
				return
			}
			delete(h.subs, id)
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Close shuts the hub down, closing every subscriber channel. Idempotent;
// later publishes are silently discarded.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.closed = true
		for id, ch := range h.subs {
			close(ch)
			delete(h.subs, id)
		}
		h.logger.Debug("Progress hub closed",
			zap.Uint64("events_published", h.seq),
			zap.Uint64("events_dropped", h.dropped),
		)
	})
}
