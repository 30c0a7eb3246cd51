package alert

import (
	"context"
	"sync"
)

const subscriberBuffer = 16

// Subscriber receives the events of one tenant, or of every tenant when All is set.
type Subscriber struct {
	C        chan Event
	TenantID string
	All      bool
}

func (s *Subscriber) wants(evt Event) bool {
	return s.All || s.TenantID == evt.Alert.TenantID
}

// Hub fans alert events out to live subscribers (the "stream" channel).
// A subscriber too slow to drain its buffer misses events rather than blocking evaluation.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	closed bool
}

var _ Notifier = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

func (h *Hub) Subscribe(tenantID string, all bool) *Subscriber {
	s := &Subscriber{C: make(chan Event, subscriberBuffer), TenantID: tenantID, All: all}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.C)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.C)
	}
}

func (h *Hub) Notify(_ context.Context, evt Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if !s.wants(evt) {
			continue
		}
		select {
		case s.C <- evt:
		default:
			streamDropped.Inc()
		}
	}
	return nil
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.C)
	}
	h.closed = true
}
