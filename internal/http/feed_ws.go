package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/keke-hail/internal/feed"
	"github.com/example/keke-hail/internal/models"
	"github.com/example/keke-hail/internal/notify"
)

var upgrader = websocket.Upgrader{
	// CORS is enforced by the surrounding middleware; the browser frontend
	// connects cross-origin during local development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 5 * time.Second

type feedMessage struct {
	Type  string        `json:"type"`
	Rides []models.Ride `json:"rides,omitempty"`
	Ride  *models.Ride  `json:"ride,omitempty"`
}

// handleFeed streams the live ride feed for one authenticated dashboard.
// Drivers get new pending rides plus every update (so rides leaving the
// pending pool disappear); passengers get changes to their own rides with
// the driver profile joined in. The subscription is scoped to the
// connection: acquired here, released by defer on every exit path.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	prof, ok := s.profile(w, r)
	if !ok {
		return
	}

	var filter notify.Filter
	var initial []models.Ride
	var err error
	if prof.Role == models.RoleDriver {
		filter = notify.Filter{PendingInsertsOnly: true}
		initial, err = s.svc.ListPending(r.Context())
	} else {
		filter = notify.Filter{PassengerID: prof.ID}
		initial, err = s.svc.ListForPassenger(r.Context(), prof.ID)
	}
	if err != nil {
		s.logger.Error("feed seed fetch failed", "user_id", prof.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rides")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(filter)
	defer sub.Close()

	local := feed.New(initial)
	if err := writeMessage(conn, feedMessage{Type: "snapshot", Rides: local.Rides()}); err != nil {
		return
	}

	// drain reads so we notice the peer going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			ride, err := s.store.GetRide(r.Context(), ev.RideID)
			if err != nil {
				continue
			}
			if prof.Role == models.RoleDriver && ride.Status != models.StatusPending {
				// left the pending pool: drop locally, still forward so
				// the driver's own accepted tab stays current
				local.Remove(ride.ID)
			} else if local.Apply(*ride) == feed.Unchanged {
				// redelivered or no-op notification, nothing to redraw
				continue
			}
			if err := writeMessage(conn, feedMessage{Type: string(ev.Type), Ride: ride}); err != nil {
				return
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg feedMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}
