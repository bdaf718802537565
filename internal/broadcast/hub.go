// Package broadcast implements the process-local publish/subscribe hub that
// fans accepted events out to connected live-stream observers.
package broadcast

import (
	"sync"

	"github.com/sshwatch/sshwatch/internal/metrics"
	"github.com/sshwatch/sshwatch/internal/models"
)

// Topic is a named broadcast channel.
type Topic string

const (
	// TopicEvents carries every accepted event.
	TopicEvents Topic = "events"
	// TopicSuspicious carries only events flagged by the anomaly scorer.
	TopicSuspicious Topic = "suspicious"
)

// DefaultBufferSize is the per-subscriber mailbox capacity.
const DefaultBufferSize = 64

// Subscription is the handle for one live connection. Messages arrive on C in
// publish order; the first message is always the synthetic connected frame.
type Subscription struct {
	id    int64
	topic Topic
	ch    chan models.StreamMessage
	hub   *Hub
}

// C returns the delivery channel. It is closed on unsubscribe and on hub
// shutdown.
func (s *Subscription) C() <-chan models.StreamMessage {
	return s.ch
}

// Close deregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// Hub owns the subscriber registry. All register, deregister, and publish
// operations hold the hub mutex, so the registry is never iterated while it
// is being mutated. Publishing never blocks: every mailbox is bounded and
// overflow drops the oldest queued message, so one slow client cannot
// back-pressure ingestion.
type Hub struct {
	mu      sync.Mutex
	nextID  int64
	bufSize int
	closed  bool
	subs    map[Topic]map[int64]*Subscription
}

func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Hub{
		bufSize: bufSize,
		subs: map[Topic]map[int64]*Subscription{
			TopicEvents:     {},
			TopicSuspicious: {},
		},
	}
}

// Subscribe registers a new observer on the topic. The synthetic connected
// acknowledgment is queued before any real event so observers can distinguish
// "stream up" from "no events yet". After hub shutdown the returned
// subscription's channel is already closed.
func (h *Hub) Subscribe(topic Topic) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:    h.nextID,
		topic: topic,
		ch:    make(chan models.StreamMessage, h.bufSize),
		hub:   h,
	}

	if h.closed {
		close(sub.ch)
		return sub
	}

	sub.ch <- models.StreamMessage{Type: models.StreamTypeConnected}
	h.subs[topic][sub.id] = sub
	metrics.StreamSubscribers.Inc()
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Removal and
// delivery share the hub mutex, so no message is delivered to a subscriber
// mid-teardown.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topic, ok := h.subs[sub.topic]
	if !ok {
		return
	}
	if _, ok := topic[sub.id]; !ok {
		return
	}
	delete(topic, sub.id)
	close(sub.ch)
	metrics.StreamSubscribers.Dec()
}

// Publish delivers msg to every subscriber currently registered on the topic.
// Per-subscriber delivery preserves publish order; there is no ordering
// guarantee across subscribers. Delivery is best-effort: a full mailbox drops
// its oldest message to make room.
func (h *Hub) Publish(topic Topic, msg models.StreamMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for _, sub := range h.subs[topic] {
		h.enqueue(sub, msg)
	}
}

func (h *Hub) enqueue(sub *Subscription, msg models.StreamMessage) {
	select {
	case sub.ch <- msg:
		return
	default:
	}

	// Mailbox full: drop the oldest queued message and retry once. The
	// second send can only fail if the subscriber drained and refilled in
	// between, in which case the new message is the one dropped.
	select {
	case <-sub.ch:
		metrics.StreamDropped.Inc()
	default:
	}
	select {
	case sub.ch <- msg:
	default:
		metrics.StreamDropped.Inc()
	}
}

// SubscriberCount reports how many observers are registered on the topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// Close drains the registry at shutdown, closing every subscriber channel.
// Subsequent publishes are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, subs := range h.subs {
		for id, sub := range subs {
			delete(subs, id)
			close(sub.ch)
			metrics.StreamSubscribers.Dec()
		}
	}
}
