package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequested = promauto.NewCounter(prometheus.CounterOpts{Namespace: "keke", Name: "rides_requested_total", Help: "Total ride requests created"})
	AcceptWins     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "keke", Name: "ride_accept_wins_total", Help: "Accept attempts that claimed the ride"})
	AcceptLosses   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "keke", Name: "ride_accept_losses_total", Help: "Accept attempts that lost the race or targeted a gone ride"})

	FeedSubscribers   = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "keke", Name: "feed_subscribers", Help: "Live change-feed subscriptions"})
	FeedEventsDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: "keke", Name: "feed_events_dropped_total", Help: "Events dropped because a subscriber buffer was full"})

	GeocodeLookups   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "keke", Name: "geocode_lookups_total", Help: "Forward geocoding lookups issued upstream"})
	GeocodeCacheHits = promauto.NewCounter(prometheus.CounterOpts{Namespace: "keke", Name: "geocode_cache_hits_total", Help: "Geocoding lookups answered from cache"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "keke", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "keke",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
