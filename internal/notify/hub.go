// Package notify is the in-process change notifier for ride records. The
// lifecycle service publishes an event for every committed mutation;
// dashboards subscribe with a role-shaped filter and receive events on a
// buffered channel. Publishing never blocks: a subscriber that cannot keep
// up loses events (its dashboard degrades to the initial fetch, which the
// product tolerates) rather than stalling writers.
package notify

import (
	"sync"

	"github.com/example/keke-hail/internal/models"
	"github.com/example/keke-hail/internal/observability"
)

// Filter narrows the feed to the rows a dashboard cares about.
type Filter struct {
	// PassengerID limits events to rides owned by this passenger.
	PassengerID string
	// PendingInsertsOnly suppresses insert events for rides that are not
	// pending. Drivers use this: they want new pending rides plus every
	// update (to notice rides leaving the pending pool).
	PendingInsertsOnly bool
}

func (f Filter) Match(ev models.RideEvent) bool {
	if f.PassengerID != "" && ev.PassengerID != f.PassengerID {
		return false
	}
	if f.PendingInsertsOnly && ev.Type == models.EventInsert && ev.Status != models.StatusPending {
		return false
	}
	return true
}

const subscriptionBuffer = 16

type Subscription struct {
	hub    *Hub
	id     int
	filter Filter
	ch     chan models.RideEvent
	once   sync.Once
}

// Events is the subscriber's receive side. It is closed by Close.
func (s *Subscription) Events() <-chan models.RideEvent { return s.ch }

// Close releases the subscription. It is safe to call more than once and
// must run on every exit path of the subscriber.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		close(s.ch)
		observability.FeedSubscribers.Dec()
	})
}

type Hub struct {
	mu   sync.RWMutex
	subs map[int]*Subscription
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]*Subscription)}
}

func (h *Hub) Subscribe(f Filter) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	s := &Subscription{hub: h, id: h.next, filter: f, ch: make(chan models.RideEvent, subscriptionBuffer)}
	h.subs[s.id] = s
	observability.FeedSubscribers.Inc()
	return s
}

func (h *Hub) Publish(ev models.RideEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.filter.Match(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			observability.FeedEventsDropped.Inc()
		}
	}
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}
