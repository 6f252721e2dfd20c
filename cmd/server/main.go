package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/keke-hail/internal/auth"
	"github.com/example/keke-hail/internal/config"
	"github.com/example/keke-hail/internal/events"
	"github.com/example/keke-hail/internal/geocode"
	httpapi "github.com/example/keke-hail/internal/http"
	"github.com/example/keke-hail/internal/logging"
	"github.com/example/keke-hail/internal/notify"
	"github.com/example/keke-hail/internal/rides"
	"github.com/example/keke-hail/internal/storage"
)

func main() {
	cfg, cfgErr := config.LoadServerConfig()
	logger := logging.NewLogger("keke-server", cfg.LogLevel)
	if cfgErr != nil {
		logger.Error("invalid configuration", "error", cfgErr)
		os.Exit(1)
	}

	var store storage.RideStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		if cfg.RunMigrations {
			if err := runMigrations(ps.DB()); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migration applied", "file", "001_create_rides.sql")
		}
		store = ps
	} else {
		logger.Warn("PG_DSN not set, rides held in process memory only")
		store = storage.NewMemoryStore()
	}

	var gc geocode.Client = geocode.Disabled{}
	if cfg.MapboxToken != "" {
		mb := geocode.NewMapboxClient(cfg.MapboxEndpoint, cfg.MapboxToken)
		mb.BiasLat = cfg.GeocodeBiasLat
		mb.BiasLng = cfg.GeocodeBiasLng
		mb.Country = cfg.GeocodeCountry
		mb.Limit = cfg.GeocodeLimit
		if cfg.RedisAddr != "" {
			mb.Cache = geocode.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.GeocodeCacheTTL)
		} else {
			mb.Cache = geocode.NewMemCache(cfg.GeocodeCacheTTL)
		}
		gc = mb
	} else {
		logger.Info("no mapbox token, request form degrades to free-text addresses")
	}

	var pub rides.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		pub = kp
	}

	hub := notify.NewHub()
	svc := rides.NewService(store, hub, pub, gc, logger)
	srv := httpapi.New(httpapi.Config{
		Store:          store,
		Service:        svc,
		Hub:            hub,
		Geocoder:       gc,
		Verifier:       auth.NewVerifier(cfg.JWTSecret),
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("keke-hail listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}

func runMigrations(db *sql.DB) error {
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
