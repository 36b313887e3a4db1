// Package notifier delivers ledger events to the owners of the affected accounts.
//
// Delivery is best effort. A slow or absent subscriber never blocks the ledger.
package notifier

import (
	"context"
	"sync"

	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/go-petr/mobile-bank/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultBuffer is the per subscription buffer used when none is configured.
const DefaultBuffer = 16

// Hub fans notifications out to in-process subscribers.
type Hub struct {
	mu     sync.RWMutex
	buffer int
	closed bool
	subs   map[string]map[*Subscription]struct{}
}

// NewHub returns a Hub whose subscriptions buffer up to buffer notifications.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = DefaultBuffer
	}

	return &Hub{
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription is a single listener of an owner's notifications.
type Subscription struct {
	hub   *Hub
	owner string
	ch    chan domain.Notification
	once  sync.Once
}

// C returns the channel notifications arrive on. It is closed by Close.
func (s *Subscription) C() <-chan domain.Notification {
	return s.ch
}

// Close unsubscribes. Calling it more than once is safe.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()

		if set, ok := s.hub.subs[s.owner]; ok {
			delete(set, s)

			if len(set) == 0 {
				delete(s.hub.subs, s.owner)
			}
		}

		close(s.ch)
		metrics.Subscribers.Dec()
	})
}

// Subscribe registers a new listener for owner. An owner may hold many subscriptions.
// After Close the returned subscription is already closed.
func (h *Hub) Subscribe(owner string) *Subscription {
	s := &Subscription{
		hub:   h,
		owner: owner,
		ch:    make(chan domain.Notification, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}

	set, ok := h.subs[owner]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[owner] = set
	}

	set[s] = struct{}{}
	metrics.Subscribers.Inc()

	return s
}

// Publish delivers the event's notifications to current subscribers. It never blocks and never fails.
func (h *Hub) Publish(ctx context.Context, event domain.LedgerEvent) error {
	l := zerolog.Ctx(ctx)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for owner, notes := range event.Notifications() {
		set := h.subs[owner]
		if len(set) == 0 {
			metrics.NotificationsDropped.WithLabelValues("no_subscriber").Add(float64(len(notes)))
			continue
		}

		for s := range set {
			for _, n := range notes {
				select {
				case s.ch <- n:
					metrics.NotificationsDelivered.Inc()
				default:
					metrics.NotificationsDropped.WithLabelValues("buffer_full").Inc()
					l.Debug().Str("owner", owner).Str("record_id", n.RecordID.String()).Msg("subscriber buffer full, notification dropped")
				}
			}
		}
	}

	return nil
}

// Close ends every open subscription so that streams reading them return.
// The server calls it on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()

	h.closed = true

	var open []*Subscription

	for _, set := range h.subs {
		for s := range set {
			open = append(open, s)
		}
	}

	h.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
}

// Subscribers returns the number of open subscriptions of owner.
func (h *Hub) Subscribers(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs[owner])
}
