// Package rides implements the ride lifecycle: request, accept, complete,
// cancel. Acceptance is the contended path, with many drivers racing for one
// pending ride, and is settled entirely by the store's conditional update;
// the service holds no cross-request state and does no locking of its own.
package rides

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/keke-hail/internal/geocode"
	"github.com/example/keke-hail/internal/models"
	"github.com/example/keke-hail/internal/notify"
	"github.com/example/keke-hail/internal/observability"
	"github.com/example/keke-hail/internal/storage"
)

var (
	// ErrEmptyAddress and ErrUnresolvedLocation are validation failures:
	// the request is rejected before any store call is made.
	ErrEmptyAddress       = errors.New("pickup and dropoff addresses are required")
	ErrUnresolvedLocation = errors.New("address must be selected from geocoder suggestions")
)

// EventPublisher is the optional out-of-process leg of change notification.
type EventPublisher interface {
	PublishRideEvent(ev models.RideEvent) error
}

type Service struct {
	Store    storage.RideStore
	Hub      *notify.Hub
	Events   EventPublisher // optional
	Geocoder geocode.Client // optional; Disabled{} when no credential
	Logger   *slog.Logger

	now func() time.Time // test seam
}

func NewService(store storage.RideStore, hub *notify.Hub, events EventPublisher, gc geocode.Client, logger *slog.Logger) *Service {
	if gc == nil {
		gc = geocode.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Hub: hub, Events: events, Geocoder: gc, Logger: logger, now: time.Now}
}

// RequestRide validates the pickup/dropoff pair and creates a pending ride.
// With geocoding enabled, a typed-but-unselected address (no coordinates)
// is rejected; with geocoding disabled, (0,0) placeholders are accepted.
func (s *Service) RequestRide(ctx context.Context, passengerID string, pickup, dropoff models.Location) (*models.Ride, error) {
	pickup.Address = strings.TrimSpace(pickup.Address)
	dropoff.Address = strings.TrimSpace(dropoff.Address)
	if pickup.Address == "" || dropoff.Address == "" {
		return nil, ErrEmptyAddress
	}
	if s.Geocoder.Enabled() && (!resolved(pickup) || !resolved(dropoff)) {
		return nil, ErrUnresolvedLocation
	}

	ride := &models.Ride{
		ID:          uuid.NewString(),
		PassengerID: passengerID,
		Pickup:      pickup,
		Dropoff:     dropoff,
		Status:      models.StatusPending,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.Store.CreateRide(ctx, ride); err != nil {
		return nil, err
	}
	observability.RidesRequested.Inc()
	s.publish(models.RideEvent{Type: models.EventInsert, RideID: ride.ID, PassengerID: ride.PassengerID, Status: ride.Status})
	s.Logger.Info("ride requested", "ride_id", ride.ID, "passenger_id", passengerID)
	return ride, nil
}

// AcceptOutcome reports how an accept attempt ended. Losing the race is a
// normal outcome, not an error: Won is false and Ride is nil.
type AcceptOutcome struct {
	Won  bool
	Ride *models.Ride
}

// AcceptRide attempts to claim a pending ride for driverID. Exactly one of
// any set of concurrent calls wins; the store's atomic conditional update
// is the sole arbiter.
func (s *Service) AcceptRide(ctx context.Context, rideID, driverID string) (AcceptOutcome, error) {
	won, err := s.Store.AcceptRide(ctx, rideID, driverID)
	if err != nil {
		return AcceptOutcome{}, err
	}
	if !won {
		observability.AcceptLosses.Inc()
		s.Logger.Info("ride no longer available", "ride_id", rideID, "driver_id", driverID)
		return AcceptOutcome{}, nil
	}
	observability.AcceptWins.Inc()
	ride, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		// the claim committed; report the win even if the re-read failed
		s.Logger.Error("re-read after accept failed", "ride_id", rideID, "error", err)
		return AcceptOutcome{Won: true}, nil
	}
	s.publish(models.RideEvent{Type: models.EventUpdate, RideID: ride.ID, PassengerID: ride.PassengerID, Status: ride.Status})
	s.Logger.Info("ride accepted", "ride_id", rideID, "driver_id", driverID)
	return AcceptOutcome{Won: true, Ride: ride}, nil
}

// CompleteRide flips an accepted ride to completed. Only the assigned
// driver's call affects the row; anyone else simply gets done=false.
func (s *Service) CompleteRide(ctx context.Context, rideID, driverID string) (bool, error) {
	return s.transition(ctx, rideID, func(ctx context.Context) (bool, error) {
		return s.Store.CompleteRide(ctx, rideID, driverID)
	})
}

// CancelRide flips a pending ride to cancelled for its owning passenger.
func (s *Service) CancelRide(ctx context.Context, rideID, passengerID string) (bool, error) {
	return s.transition(ctx, rideID, func(ctx context.Context) (bool, error) {
		return s.Store.CancelRide(ctx, rideID, passengerID)
	})
}

func (s *Service) transition(ctx context.Context, rideID string, op func(context.Context) (bool, error)) (bool, error) {
	done, err := op(ctx)
	if err != nil || !done {
		return false, err
	}
	if ride, err := s.Store.GetRide(ctx, rideID); err == nil {
		s.publish(models.RideEvent{Type: models.EventUpdate, RideID: ride.ID, PassengerID: ride.PassengerID, Status: ride.Status})
	}
	return true, nil
}

// ListForPassenger returns the passenger's rides, newest first.
func (s *Service) ListForPassenger(ctx context.Context, passengerID string) ([]models.Ride, error) {
	return s.Store.ListRides(ctx, storage.ListFilter{PassengerID: passengerID})
}

// ListPending returns the open pool every driver sees.
func (s *Service) ListPending(ctx context.Context) ([]models.Ride, error) {
	return s.Store.ListRides(ctx, storage.ListFilter{Statuses: []models.RideStatus{models.StatusPending}})
}

// ListForDriver returns rides the driver has claimed.
func (s *Service) ListForDriver(ctx context.Context, driverID string) ([]models.Ride, error) {
	return s.Store.ListRides(ctx, storage.ListFilter{DriverID: driverID})
}

func (s *Service) publish(ev models.RideEvent) {
	if s.Hub != nil {
		s.Hub.Publish(ev)
	}
	if s.Events != nil {
		if err := s.Events.PublishRideEvent(ev); err != nil {
			s.Logger.Warn("kafka publish failed", "ride_id", ev.RideID, "error", err)
		}
	}
}

func resolved(l models.Location) bool { return l.Lat != 0 || l.Lng != 0 }
