// Package live fans out in-process change notifications to streaming
// subscribers such as the check-in dashboard.
package live

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// Message is a single notification.
type Message struct {
	Topic   string    `json:"topic"`
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// EventTopic is the topic carrying updates for one event.
func EventTopic(eventID string) string { return "event:" + eventID }

// Hub is a topic based publish/subscribe broker. Publish never blocks: a
// subscriber whose buffer is full misses the message.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan Message
	next   uint64
	buffer int
	closed bool
	logger *slog.Logger
}

func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[uint64]chan Message),
		buffer: buffer,
		logger: logger.With("component", "live_hub"),
	}
}

// Subscribe registers interest in topic. The returned cancel function closes
// the channel and is safe to call more than once.
func (h *Hub) Subscribe(topic string) (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Message, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.next
	h.next++
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[uint64]chan Message)
	}
	h.subs[topic][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.remove(topic, id) })
	}
}

func (h *Hub) remove(topic string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[topic]
	ch, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.subs, topic)
	}
	close(ch)
}

// Publish delivers msg to every subscriber of msg.Topic and returns the
// number of subscribers that received it.
func (h *Hub) Publish(msg Message) int {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, ch := range h.subs[msg.Topic] {
		select {
		case ch <- msg:
			delivered++
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Debug("live message dropped for slow subscribers", "topic", msg.Topic, "type", msg.Type, "dropped", dropped)
	}
	return delivered
}

// Subscribers reports the number of subscribers for topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, subs := range h.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(h.subs, topic)
	}
}
