package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/keke-hail/internal/auth"
	"github.com/example/keke-hail/internal/geocode"
	"github.com/example/keke-hail/internal/models"
	"github.com/example/keke-hail/internal/notify"
	"github.com/example/keke-hail/internal/rides"
	"github.com/example/keke-hail/internal/storage"
)

type Server struct {
	store    storage.RideStore
	svc      *rides.Service
	hub      *notify.Hub
	geocoder geocode.Client
	verifier *auth.Verifier
	logger   *slog.Logger

	mux     *mux.Router
	handler http.Handler
}

type Config struct {
	Store          storage.RideStore
	Service        *rides.Service
	Hub            *notify.Hub
	Geocoder       geocode.Client
	Verifier       *auth.Verifier
	Logger         *slog.Logger
	AllowedOrigins []string
}

func New(cfg Config) *Server {
	gc := cfg.Geocoder
	if gc == nil {
		gc = geocode.Disabled{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    cfg.Store,
		svc:      cfg.Service,
		hub:      cfg.Hub,
		geocoder: gc,
		verifier: cfg.Verifier,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(s.mux)
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.verifier.Middleware)
	api.HandleFunc("/rides", s.handleRequestRide).Methods("POST")
	api.HandleFunc("/rides", s.handleListRides).Methods("GET")
	api.HandleFunc("/rides/{id}/accept", s.handleAcceptRide).Methods("POST")
	api.HandleFunc("/rides/{id}/complete", s.handleCompleteRide).Methods("POST")
	api.HandleFunc("/rides/{id}/cancel", s.handleCancelRide).Methods("POST")
	api.HandleFunc("/geocode", s.handleGeocode).Methods("GET")

	ws := s.mux.PathPrefix("/ws").Subrouter()
	ws.Use(s.verifier.Middleware)
	ws.HandleFunc("/rides", s.handleFeed)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

// handleReady reports readiness: the store must answer. The memory store has
// no Ping and is always ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store not ready")
			return
		}
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

// profile resolves the session user's row from the users table. A valid
// token without a profile row is a configuration problem (signup trigger
// missing, email unconfirmed) and gets its own response shape so the
// frontend can render it distinctly from a crash.
func (s *Server) profile(w http.ResponseWriter, r *http.Request) (*models.UserProfile, bool) {
	u, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	prof, err := s.store.GetProfile(r.Context(), u.ID)
	if errors.Is(err, storage.ErrProfileNotFound) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   "profile_not_found",
			"user_id": u.ID,
			"email":   u.Email,
		})
		return nil, false
	}
	if err != nil {
		s.logger.Error("profile lookup failed", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return prof, true
}

func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, role string) (*models.UserProfile, bool) {
	prof, ok := s.profile(w, r)
	if !ok {
		return nil, false
	}
	if prof.Role != role {
		writeError(w, http.StatusForbidden, "requires "+role+" role")
		return nil, false
	}
	return prof, true
}

type rideRequestBody struct {
	Pickup  models.Location `json:"pickup_location"`
	Dropoff models.Location `json:"dropoff_location"`
}

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	prof, ok := s.requireRole(w, r, models.RolePassenger)
	if !ok {
		return
	}
	var body rideRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ride, err := s.svc.RequestRide(r.Context(), prof.ID, body.Pickup, body.Dropoff)
	switch {
	case errors.Is(err, rides.ErrEmptyAddress), errors.Is(err, rides.ErrUnresolvedLocation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.logger.Error("create ride failed", "passenger_id", prof.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create ride request")
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleListRides(w http.ResponseWriter, r *http.Request) {
	prof, ok := s.profile(w, r)
	if !ok {
		return
	}
	var (
		list []models.Ride
		err  error
	)
	switch {
	case prof.Role == models.RolePassenger:
		list, err = s.svc.ListForPassenger(r.Context(), prof.ID)
	case r.URL.Query().Get("view") == "accepted":
		list, err = s.svc.ListForDriver(r.Context(), prof.ID)
	default:
		list, err = s.svc.ListPending(r.Context())
	}
	if err != nil {
		s.logger.Error("list rides failed", "user_id", prof.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rides")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rides": list})
}

func (s *Server) handleAcceptRide(w http.ResponseWriter, r *http.Request) {
	prof, ok := s.requireRole(w, r, models.RoleDriver)
	if !ok {
		return
	}
	rideID := mux.Vars(r)["id"]
	outcome, err := s.svc.AcceptRide(r.Context(), rideID, prof.ID)
	if err != nil {
		s.logger.Error("accept ride failed", "ride_id", rideID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to accept ride")
		return
	}
	if !outcome.Won {
		writeError(w, http.StatusConflict, "ride no longer available")
		return
	}
	if outcome.Ride != nil {
		writeJSON(w, http.StatusOK, outcome.Ride)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": true})
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	prof, ok := s.requireRole(w, r, models.RoleDriver)
	if !ok {
		return
	}
	rideID := mux.Vars(r)["id"]
	done, err := s.svc.CompleteRide(r.Context(), rideID, prof.ID)
	if err != nil {
		s.logger.Error("complete ride failed", "ride_id", rideID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to complete ride")
		return
	}
	if !done {
		writeError(w, http.StatusConflict, "ride is not yours to complete")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"completed": true})
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	prof, ok := s.requireRole(w, r, models.RolePassenger)
	if !ok {
		return
	}
	rideID := mux.Vars(r)["id"]
	done, err := s.svc.CancelRide(r.Context(), rideID, prof.ID)
	if err != nil {
		s.logger.Error("cancel ride failed", "ride_id", rideID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel ride")
		return
	}
	if !done {
		writeError(w, http.StatusConflict, "ride can no longer be cancelled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.profile(w, r); !ok {
		return
	}
	if !s.geocoder.Enabled() {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false, "suggestions": []geocode.Suggestion{}})
		return
	}
	sugg, err := s.geocoder.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.logger.Warn("geocode lookup failed", "error", err)
		writeError(w, http.StatusBadGateway, "geocoding unavailable")
		return
	}
	if sugg == nil {
		sugg = []geocode.Suggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "suggestions": sugg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
