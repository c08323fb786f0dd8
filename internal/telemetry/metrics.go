package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HorizonTicksTotal counts orchestrator passes.
	HorizonTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sagatv_horizon_ticks_total",
		Help: "Total number of horizon maintenance passes.",
	})

	// HorizonErrorsTotal counts per-channel orchestrator failures by stage.
	HorizonErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagatv_horizon_errors_total",
		Help: "Total number of horizon maintenance errors, by channel and stage.",
	}, []string{"channel", "stage"})

	// DayResolutionDuration observes how long a full day build takes.
	DayResolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sagatv_day_resolution_duration_seconds",
		Help:    "Time spent resolving one broadcast day.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"channel"})

	// DaysResolvedTotal counts day resolutions by outcome (resolved, failed).
	DaysResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagatv_days_resolved_total",
		Help: "Total number of broadcast day resolutions, by channel and outcome.",
	}, []string{"channel", "outcome"})

	// PlaylogEventsEmitted counts playlog events written per channel.
	PlaylogEventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagatv_playlog_events_emitted_total",
		Help: "Total number of playlog events emitted, by channel.",
	}, []string{"channel"})

	// PlaylogLeadSeconds tracks how far ahead of now the playlog extends.
	PlaylogLeadSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sagatv_playlog_lead_seconds",
		Help: "Seconds of emitted playlog remaining ahead of the current instant, by channel.",
	}, []string{"channel"})

	// GuideExportDuration observes guide rendering time by format.
	GuideExportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sagatv_guide_export_duration_seconds",
		Help:    "Time spent rendering one guide export.",
		Buckets: prometheus.DefBuckets,
	}, []string{"format"})

	// GuideExportsTotal counts guide exports by format and outcome.
	GuideExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagatv_guide_exports_total",
		Help: "Total number of guide exports, by format and outcome.",
	}, []string{"format", "outcome"})

	// LeaderElectionStatus reports 1 when this instance holds the lease.
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sagatv_leader_election_status",
		Help: "Leadership status of this instance (1 leader, 0 follower).",
	}, []string{"instance"})

	// LeaderElectionChanges counts leadership transitions.
	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagatv_leader_election_changes_total",
		Help: "Total number of leadership transitions, by instance and direction.",
	}, []string{"instance", "transition"})

	// EventsPublished counts domain events pushed onto the bus.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagatv_events_published_total",
		Help: "Total number of domain events published, by type.",
	}, []string{"type"})

	// ValidationFailuresTotal counts rejected mutations by rule code.
	ValidationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagatv_validation_failures_total",
		Help: "Total number of validation rejections, by entity and rule code.",
	}, []string{"entity", "code"})

	// DatabaseConnectionsActive mirrors the sql.DB in-use connection count.
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sagatv_database_connections_active",
		Help: "Number of database connections currently in use.",
	})

	// DatabaseQueryDuration observes gorm operation latency.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sagatv_database_query_duration_seconds",
		Help:    "Database operation latency, by operation and table.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts failed database operations.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagatv_database_errors_total",
		Help: "Total number of database errors, by operation and kind.",
	}, []string{"operation", "kind"})

	// APIRequestsTotal counts HTTP requests by method, route and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sagatv_api_requests_total",
		Help: "Total number of API requests, by method, endpoint and status code.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sagatv_api_request_duration_seconds",
		Help:    "API request latency, by method, endpoint and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight API requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sagatv_api_active_connections",
		Help: "Number of API requests currently being served.",
	})

	// WebsocketClients tracks connected on-air feed subscribers.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sagatv_websocket_clients",
		Help: "Number of connected websocket subscribers.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
