package sink

import (
	"context"
	"sync"

	"github.com/gojue/ecaptureQ/internal/packet"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
	"github.com/google/uuid"
)

const DefaultSubscriberBuffer = 64

// Batch is one emitted slice of rows.
type Batch struct {
	Topic string
	Rows  []packet.Record
}

// Hub fans batches out to in-process subscribers. A subscriber whose queue
// is full misses the batch; the emitter never blocks.
type Hub struct {
	buf    int
	logger logpkg.Logger

	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewHub returns a Hub whose subscribers queue up to buf batches each.
func NewHub(buf int, logger logpkg.Logger) *Hub {
	if buf <= 0 {
		buf = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
	return &Hub{buf: buf, logger: logger.WithComponent("hub"), subs: make(map[string]*Subscription)}
}

// Subscription receives batches for one topic, or every topic when Topic is
// empty.
type Subscription struct {
	ID    string
	Topic string

	hub     *Hub
	ch      chan Batch
	once    sync.Once
	mu      sync.Mutex
	dropped uint64
}

// C delivers batches until the subscription is closed.
func (s *Subscription) C() <-chan Batch { return s.ch }

// Dropped counts batches lost to a full queue.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.ID)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

// Subscribe attaches a subscriber to topic; an empty topic receives every
// batch. Close the Subscription to detach.
func (h *Hub) Subscribe(topic string) *Subscription {
	s := &Subscription{
		ID:    uuid.NewString(),
		Topic: topic,
		hub:   h,
		ch:    make(chan Batch, h.buf),
	}
	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()
	h.logger.Debug("subscriber attached", logpkg.Str(logpkg.SubscriberKey, s.ID), logpkg.Str("topic", topic))
	return s
}

// Subscribers returns the number of attached subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Emit(ctx context.Context, topic string, rows []packet.Record) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.Topic != "" && s.Topic != topic {
			continue
		}
		select {
		case s.ch <- Batch{Topic: topic, Rows: rows}:
		default:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
			h.logger.WithContext(ctx).Warn("subscriber queue full, batch dropped",
				logpkg.Str(logpkg.SubscriberKey, s.ID), logpkg.Int("rows", len(rows)))
		}
	}
	return nil
}
