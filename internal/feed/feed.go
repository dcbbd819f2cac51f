// Package feed carries tracker output to whoever is listening: reconciled
// idle events and the 1 Hz idle samples shown while a session runs.
// Delivery is at-least-once to attached subscribers and never blocks the
// tracker; a full or absent subscriber drops the message.
package feed

import (
	"sync"
	"sync/atomic"

	"github.com/punchd/punchd/internal/session"
)

// Kind discriminates envelope payloads.
type Kind string

const (
	KindIdleEvent Kind = "idle-event"
	KindSample    Kind = "idle-time-update"
)

// Envelope is the tagged payload sent over the feed. Exactly one of the
// payload pointers is set, matching Kind.
type Envelope struct {
	Kind      Kind               `json:"type"`
	IdleEvent *session.IdleEvent `json:"idleEvent,omitempty"`
	Sample    *session.Sample    `json:"sample,omitempty"`
}

// NewIdleEvent wraps a reconciled idle event for publishing.
func NewIdleEvent(ev session.IdleEvent) Envelope {
	return Envelope{Kind: KindIdleEvent, IdleEvent: &ev}
}

// NewSample wraps an idle probe sample for publishing.
func NewSample(sm session.Sample) Envelope {
	return Envelope{Kind: KindSample, Sample: &sm}
}

// Hub fans envelopes out to subscribers. The zero value is not usable; use
// NewHub.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool

	drops atomic.Uint64

	// OnDrop, when set before the hub is used, observes every dropped
	// envelope (metrics hook).
	OnDrop func(Kind)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription is one subscriber's handle. Close releases it; closing twice
// is safe, and the event channel is closed exactly once.
type Subscription struct {
	hub  *Hub
	ch   chan Envelope
	once sync.Once
}

// Events returns the channel envelopes arrive on. It is closed when the
// subscription or the hub closes.
func (s *Subscription) Events() <-chan Envelope { return s.ch }

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if _, ok := s.hub.subs[s]; ok {
			delete(s.hub.subs, s)
			close(s.ch)
		}
	})
}

// Subscribe registers a new subscriber with the given channel buffer.
// Subscribing on a closed hub returns an already-closed subscription.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &Subscription{hub: h, ch: make(chan Envelope, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Publish delivers env to every subscriber without blocking. Envelopes that
// do not fit a subscriber's buffer are dropped and counted.
func (h *Hub) Publish(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		select {
		case sub.ch <- env:
		default:
			h.drops.Add(1)
			if h.OnDrop != nil {
				h.OnDrop(env.Kind)
			}
		}
	}
}

// Close closes the hub and every remaining subscription channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Drops returns the number of envelopes dropped since the hub was created.
func (h *Hub) Drops() uint64 { return h.drops.Load() }
