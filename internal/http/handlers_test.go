package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/keke-hail/internal/auth"
	"github.com/example/keke-hail/internal/geocode"
	"github.com/example/keke-hail/internal/models"
	"github.com/example/keke-hail/internal/notify"
	"github.com/example/keke-hail/internal/rides"
	"github.com/example/keke-hail/internal/storage"
)

type testEnv struct {
	srv      *Server
	store    *storage.MemoryStore
	verifier *auth.Verifier
}

func newTestEnv(t *testing.T, gc geocode.Client) *testEnv {
	t.Helper()
	store := storage.NewMemoryStore()
	store.PutProfile(models.UserProfile{ID: "p1", Role: models.RolePassenger, Name: "Amina", Phone: "0801"})
	store.PutProfile(models.UserProfile{ID: "d1", Role: models.RoleDriver, Name: "Musa", Phone: "0802", VehicleInfo: "Yellow keke NAPEP"})
	store.PutProfile(models.UserProfile{ID: "d2", Role: models.RoleDriver, Name: "Sani", Phone: "0803", VehicleInfo: "Green keke"})

	hub := notify.NewHub()
	verifier := auth.NewVerifier("test-secret")
	svc := rides.NewService(store, hub, nil, gc, nil)
	srv := New(Config{Store: store, Service: svc, Hub: hub, Geocoder: gc, Verifier: verifier})
	return &testEnv{srv: srv, store: store, verifier: verifier}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.verifier.Token(userID, userID+"@example.com", time.Minute)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func requestBody(pickup, dropoff models.Location) map[string]any {
	return map[string]any{"pickup_location": pickup, "dropoff_location": dropoff}
}

// Scenario: passenger requests a ride, it shows up pending and unassigned
// in their list.
func TestRequestRideAppearsPending(t *testing.T) {
	e := newTestEnv(t, geocode.Disabled{})

	rec := e.do(t, "POST", "/api/v1/rides", "p1",
		requestBody(models.Location{Address: "Kano Mall"}, models.Location{Address: "Airport Rd"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var ride models.Ride
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ride))
	require.Equal(t, models.StatusPending, ride.Status)
	require.Empty(t, ride.DriverID)

	rec = e.do(t, "GET", "/api/v1/rides", "p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rides []models.Ride `json:"rides"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Rides, 1)
	require.Equal(t, ride.ID, list.Rides[0].ID)
}

// Scenario: two drivers race for the same ride; one wins, the other gets a
// non-fatal conflict.
func TestAcceptRaceSecondDriverConflicts(t *testing.T) {
	e := newTestEnv(t, geocode.Disabled{})

	rec := e.do(t, "POST", "/api/v1/rides", "p1",
		requestBody(models.Location{Address: "Kano Mall"}, models.Location{Address: "Airport Rd"}))
	require.Equal(t, http.StatusCreated, rec.Code)
	var ride models.Ride
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ride))

	rec = e.do(t, "POST", "/api/v1/rides/"+ride.ID+"/accept", "d1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var accepted models.Ride
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.Equal(t, models.StatusAccepted, accepted.Status)
	require.Equal(t, "d1", accepted.DriverID)

	rec = e.do(t, "POST", "/api/v1/rides/"+ride.ID+"/accept", "d2", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "no longer available")
}

// Scenario: no geocoder credential, manually typed addresses with (0,0)
// still create a valid pending ride.
func TestManualAddressesWithoutGeocoder(t *testing.T) {
	e := newTestEnv(t, geocode.Disabled{})

	rec := e.do(t, "POST", "/api/v1/rides", "p1",
		requestBody(models.Location{Address: "Opposite the old market"}, models.Location{Address: "Church gate"}))
	require.Equal(t, http.StatusCreated, rec.Code)

	var ride models.Ride
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ride))
	require.Equal(t, models.StatusPending, ride.Status)
	require.Zero(t, ride.Pickup.Lat)
	require.Zero(t, ride.Pickup.Lng)
}

// enabledStub reports geocoding as configured without calling upstream.
type enabledStub struct{}

func (enabledStub) Enabled() bool { return true }
func (enabledStub) Search(ctx context.Context, q string) ([]geocode.Suggestion, error) {
	return nil, nil
}

func TestUnresolvedAddressRejectedWhenGeocodingEnabled(t *testing.T) {
	e := newTestEnv(t, enabledStub{})

	rec := e.do(t, "POST", "/api/v1/rides", "p1",
		requestBody(models.Location{Address: "Kano Mall"}, models.Location{Address: "Airport Rd"}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.do(t, "POST", "/api/v1/rides", "p1",
		requestBody(
			models.Location{Address: "Kano Mall", Lat: 11.99, Lng: 8.52},
			models.Location{Address: "Airport Rd", Lat: 12.04, Lng: 8.52}))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestRoleEnforcement(t *testing.T) {
	e := newTestEnv(t, geocode.Disabled{})

	// drivers cannot request rides
	rec := e.do(t, "POST", "/api/v1/rides", "d1",
		requestBody(models.Location{Address: "A"}, models.Location{Address: "B"}))
	require.Equal(t, http.StatusForbidden, rec.Code)

	// passengers cannot accept
	rec = e.do(t, "POST", "/api/v1/rides", "p1",
		requestBody(models.Location{Address: "A"}, models.Location{Address: "B"}))
	var ride models.Ride
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ride))
	rec = e.do(t, "POST", "/api/v1/rides/"+ride.ID+"/accept", "p1", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMissingProfileIsDistinctFromCrash(t *testing.T) {
	e := newTestEnv(t, geocode.Disabled{})

	// authenticated but no row in the users table
	rec := e.do(t, "GET", "/api/v1/rides", "ghost", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "profile_not_found", body["error"])
	require.Equal(t, "ghost", body["user_id"])
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	e := newTestEnv(t, geocode.Disabled{})
	rec := e.do(t, "GET", "/api/v1/rides", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGeocodeEndpointDisabled(t *testing.T) {
	e := newTestEnv(t, geocode.Disabled{})
	rec := e.do(t, "GET", "/api/v1/geocode?q=kano", "p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Enabled     bool                 `json:"enabled"`
		Suggestions []geocode.Suggestion `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Enabled)
	require.Empty(t, body.Suggestions)
}

func TestCancelEndpoint(t *testing.T) {
	e := newTestEnv(t, geocode.Disabled{})

	rec := e.do(t, "POST", "/api/v1/rides", "p1",
		requestBody(models.Location{Address: "A"}, models.Location{Address: "B"}))
	var ride models.Ride
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ride))

	rec = e.do(t, "POST", "/api/v1/rides/"+ride.ID+"/cancel", "p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// a cancelled ride cannot be accepted
	rec = e.do(t, "POST", "/api/v1/rides/"+ride.ID+"/accept", "d1", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}
