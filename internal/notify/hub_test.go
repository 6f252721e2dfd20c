package notify

import (
	"testing"

	"github.com/example/keke-hail/internal/models"
)

func pendingInsert(rideID, passengerID string) models.RideEvent {
	return models.RideEvent{Type: models.EventInsert, RideID: rideID, PassengerID: passengerID, Status: models.StatusPending}
}

func TestFilterMatch(t *testing.T) {
	driver := Filter{PendingInsertsOnly: true}
	passenger := Filter{PassengerID: "p1"}

	cases := []struct {
		name   string
		f      Filter
		ev     models.RideEvent
		expect bool
	}{
		{"driver sees pending insert", driver, pendingInsert("r1", "p1"), true},
		{"driver ignores non-pending insert", driver,
			models.RideEvent{Type: models.EventInsert, RideID: "r1", PassengerID: "p1", Status: models.StatusAccepted}, false},
		{"driver sees every update", driver,
			models.RideEvent{Type: models.EventUpdate, RideID: "r1", PassengerID: "p1", Status: models.StatusAccepted}, true},
		{"passenger sees own ride", passenger, pendingInsert("r1", "p1"), true},
		{"passenger ignores others", passenger, pendingInsert("r1", "p2"), false},
	}
	for _, c := range cases {
		if got := c.f.Match(c.ev); got != c.expect {
			t.Errorf("%s: Match=%v", c.name, got)
		}
	}
}

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	h := NewHub()
	driver := h.Subscribe(Filter{PendingInsertsOnly: true})
	defer driver.Close()
	other := h.Subscribe(Filter{PassengerID: "p2"})
	defer other.Close()

	h.Publish(pendingInsert("r1", "p1"))

	select {
	case ev := <-driver.Events():
		if ev.RideID != "r1" {
			t.Fatalf("got %+v", ev)
		}
	default:
		t.Fatal("driver subscription missed the event")
	}
	select {
	case ev := <-other.Events():
		t.Fatalf("filtered subscription received %+v", ev)
	default:
	}
}

func TestCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(Filter{})
	sub.Close()
	sub.Close() // must not panic

	// publishing after close must not panic either
	h.Publish(pendingInsert("r1", "p1"))

	if _, open := <-sub.Events(); open {
		t.Fatal("channel still open after close")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(Filter{})
	defer sub.Close()

	// overflow the buffer; Publish must return every time
	for i := 0; i < subscriptionBuffer*2; i++ {
		h.Publish(pendingInsert("r1", "p1"))
	}

	n := 0
	for {
		select {
		case <-sub.Events():
			n++
			continue
		default:
		}
		break
	}
	if n != subscriptionBuffer {
		t.Fatalf("expected %d buffered events, got %d", subscriptionBuffer, n)
	}
}
