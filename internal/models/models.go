package models

import "time"

// RideStatus is the lifecycle state of a ride. A ride is created pending,
// claimed by exactly one driver (accepted), and ends completed or cancelled.
type RideStatus string

const (
	StatusPending   RideStatus = "pending"
	StatusAccepted  RideStatus = "accepted"
	StatusCompleted RideStatus = "completed"
	StatusCancelled RideStatus = "cancelled"
)

// Location is an address with resolved coordinates. Lat/Lng are (0,0) when
// the address was typed manually without geocoding.
type Location struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// UserProfile is the public slice of a user record shown to the counterparty.
// VehicleInfo is only set for drivers.
type UserProfile struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	VehicleInfo string `json:"vehicle_info,omitempty"`
}

const (
	RoleDriver    = "driver"
	RolePassenger = "passenger"
)

// Ride is the sole domain entity. DriverID is empty while the ride is
// pending and is set exactly once, by the winning accept.
// Passenger and Driver carry the denormalized counterparty profiles when the
// ride was read through a joined query; they are nil otherwise.
type Ride struct {
	ID          string       `json:"id"`
	PassengerID string       `json:"passenger_id"`
	DriverID    string       `json:"driver_id,omitempty"`
	Pickup      Location     `json:"pickup_location"`
	Dropoff     Location     `json:"dropoff_location"`
	Status      RideStatus   `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	Passenger   *UserProfile `json:"passenger,omitempty"`
	Driver      *UserProfile `json:"driver,omitempty"`
}

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// RideEvent is a change notification for one ride. Subscribers re-fetch the
// full row by ID; the event itself only carries what filters need.
type RideEvent struct {
	Type        EventType  `json:"event_type"`
	RideID      string     `json:"ride_id"`
	PassengerID string     `json:"passenger_id"`
	Status      RideStatus `json:"status"`
}
