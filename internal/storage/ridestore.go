package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/keke-hail/internal/models"
)

var (
	ErrRideNotFound    = errors.New("ride not found")
	ErrProfileNotFound = errors.New("profile not found")
)

// ListFilter selects rides by ANDed equality predicates. Zero values match
// everything.
type ListFilter struct {
	PassengerID string
	DriverID    string
	Statuses    []models.RideStatus
}

// RideStore defines persistence operations for rides and user profiles.
// The three lifecycle transitions are conditional updates: they report
// whether a row was actually claimed so callers can branch on contention
// instead of catching an error. Reads return rides with counterparty
// profiles joined in.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	ListRides(ctx context.Context, f ListFilter) ([]models.Ride, error)

	// AcceptRide sets the driver and flips status to accepted, but only if
	// the ride is still pending. It returns false when another driver got
	// there first or the ride no longer exists.
	AcceptRide(ctx context.Context, rideID, driverID string) (bool, error)
	// CompleteRide flips accepted to completed, only for the assigned driver.
	CompleteRide(ctx context.Context, rideID, driverID string) (bool, error)
	// CancelRide flips pending to cancelled, only for the owning passenger.
	CancelRide(ctx context.Context, rideID, passengerID string) (bool, error)

	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// MemoryStore keeps rides and profiles in process memory. It backs local
// runs without Postgres and the test suite; the conditional updates hold
// under concurrent goroutines because every mutation takes the write lock.
type MemoryStore struct {
	mu       sync.RWMutex
	rides    map[string]*models.Ride
	profiles map[string]*models.UserProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:    make(map[string]*models.Ride),
		profiles: make(map[string]*models.UserProfile),
	}
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	cp.Passenger, cp.Driver = nil, nil
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrRideNotFound
	}
	return m.joinLocked(r), nil
}

func (m *MemoryStore) ListRides(ctx context.Context, f ListFilter) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Ride, 0)
	for _, r := range m.rides {
		if f.PassengerID != "" && r.PassengerID != f.PassengerID {
			continue
		}
		if f.DriverID != "" && r.DriverID != f.DriverID {
			continue
		}
		if len(f.Statuses) > 0 && !statusIn(r.Status, f.Statuses) {
			continue
		}
		out = append(out, *m.joinLocked(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) AcceptRide(ctx context.Context, rideID, driverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok || r.Status != models.StatusPending {
		return false, nil
	}
	r.DriverID = driverID
	r.Status = models.StatusAccepted
	return true, nil
}

func (m *MemoryStore) CompleteRide(ctx context.Context, rideID, driverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok || r.Status != models.StatusAccepted || r.DriverID != driverID {
		return false, nil
	}
	r.Status = models.StatusCompleted
	return true, nil
}

func (m *MemoryStore) CancelRide(ctx context.Context, rideID, passengerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok || r.Status != models.StatusPending || r.PassengerID != passengerID {
		return false, nil
	}
	r.Status = models.StatusCancelled
	return true, nil
}

func (m *MemoryStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

// PutProfile registers a user profile. Signup is owned by the identity
// provider, so only local runs and tests seed profiles this way.
func (m *MemoryStore) PutProfile(p models.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = &p
}

func (m *MemoryStore) joinLocked(r *models.Ride) *models.Ride {
	cp := *r
	if p, ok := m.profiles[r.PassengerID]; ok {
		pc := *p
		cp.Passenger = &pc
	}
	if r.DriverID != "" {
		if d, ok := m.profiles[r.DriverID]; ok {
			dc := *d
			cp.Driver = &dc
		}
	}
	return &cp
}

func statusIn(s models.RideStatus, set []models.RideStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
