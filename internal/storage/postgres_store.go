package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/example/keke-hail/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(id, passenger_id, pickup_address, pickup_lat, pickup_lng, dropoff_address, dropoff_lat, dropoff_lng, status, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.PassengerID, r.Pickup.Address, r.Pickup.Lat, r.Pickup.Lng,
		r.Dropoff.Address, r.Dropoff.Lat, r.Dropoff.Lng, r.Status, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

const rideColumns = `r.id, r.passenger_id, r.driver_id, r.pickup_address, r.pickup_lat, r.pickup_lng,
	r.dropoff_address, r.dropoff_lat, r.dropoff_lng, r.status, r.created_at,
	p.name, p.phone, d.name, d.phone, d.vehicle_info`

const rideJoins = ` FROM rides r
	JOIN users p ON p.id = r.passenger_id
	LEFT JOIN users d ON d.id = r.driver_id`

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+rideJoins+` WHERE r.id = $1`, id)
	r, err := scanRide(row)
	if err == sql.ErrNoRows {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ride: %w", err)
	}
	return r, nil
}

func (p *PostgresStore) ListRides(ctx context.Context, f ListFilter) ([]models.Ride, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if f.PassengerID != "" {
		args = append(args, f.PassengerID)
		where = append(where, fmt.Sprintf("r.passenger_id = $%d", len(args)))
	}
	if f.DriverID != "" {
		args = append(args, f.DriverID)
		where = append(where, fmt.Sprintf("r.driver_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		ss := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ss[i] = string(s)
		}
		args = append(args, pq.Array(ss))
		where = append(where, fmt.Sprintf("r.status = ANY($%d)", len(args)))
	}
	q := `SELECT ` + rideColumns + rideJoins
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY r.created_at DESC"

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	defer rows.Close()

	out := make([]models.Ride, 0)
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// AcceptRide is the system's only concurrency-control primitive: a single
// conditional update guarded by the current-status predicate. The store's
// row-level atomicity arbitrates concurrent accepts; whichever update it
// processes first affects the row, the rest affect zero rows.
func (p *PostgresStore) AcceptRide(ctx context.Context, rideID, driverID string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET driver_id = $1, status = $2 WHERE id = $3 AND status = $4`,
		driverID, models.StatusAccepted, rideID, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("accept ride: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *PostgresStore) CompleteRide(ctx context.Context, rideID, driverID string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET status = $1 WHERE id = $2 AND status = $3 AND driver_id = $4`,
		models.StatusCompleted, rideID, models.StatusAccepted, driverID)
	if err != nil {
		return false, fmt.Errorf("complete ride: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *PostgresStore) CancelRide(ctx context.Context, rideID, passengerID string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET status = $1 WHERE id = $2 AND status = $3 AND passenger_id = $4`,
		models.StatusCancelled, rideID, models.StatusPending, passengerID)
	if err != nil {
		return false, fmt.Errorf("cancel ride: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var prof models.UserProfile
	err := p.db.QueryRowContext(ctx,
		`SELECT id, role, name, phone, vehicle_info FROM users WHERE id = $1`, userID).
		Scan(&prof.ID, &prof.Role, &prof.Name, &prof.Phone, &prof.VehicleInfo)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &prof, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var (
		r        models.Ride
		driverID sql.NullString
		pName    string
		pPhone   string
		dName    sql.NullString
		dPhone   sql.NullString
		dVehicle sql.NullString
	)
	err := row.Scan(&r.ID, &r.PassengerID, &driverID,
		&r.Pickup.Address, &r.Pickup.Lat, &r.Pickup.Lng,
		&r.Dropoff.Address, &r.Dropoff.Lat, &r.Dropoff.Lng,
		&r.Status, &r.CreatedAt,
		&pName, &pPhone, &dName, &dPhone, &dVehicle)
	if err != nil {
		return nil, err
	}
	r.Passenger = &models.UserProfile{ID: r.PassengerID, Role: models.RolePassenger, Name: pName, Phone: pPhone}
	if driverID.Valid {
		r.DriverID = driverID.String
		r.Driver = &models.UserProfile{
			ID:          driverID.String,
			Role:        models.RoleDriver,
			Name:        dName.String,
			Phone:       dPhone.String,
			VehicleInfo: dVehicle.String,
		}
	}
	return &r, nil
}
