package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Control loop metrics
var (
	// TickDuration tracks how long one tick takes, excluding the sleep
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ducker_tick_duration_seconds",
			Help:    "Control loop tick duration in seconds, sleep excluded",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	// StatusFlips counts state machine transitions by the status entered
	StatusFlips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ducker_status_flips_total",
			Help: "Total status transitions by new status",
		},
		[]string{"status"},
	)

	// CurrentStatus is 0 while restored and 1 while reduced
	CurrentStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ducker_status",
			Help: "Current ducking status (0=restore, 1=reduce)",
		},
	)

	// MeasuredPeak is the peak that drove the last state machine step
	MeasuredPeak = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ducker_measured_peak",
			Help: "Maximum peak among measured sessions on the last tick",
		},
	)

	// Sessions tracks classified sessions by role
	Sessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ducker_sessions",
			Help: "Sessions on the default device by role",
		},
		[]string{"role"},
	)

	// Commands counts commands drained by the worker by kind
	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ducker_commands_total",
			Help: "Total commands processed by kind",
		},
		[]string{"kind"},
	)

	// ObserverDrops counts snapshots dropped because an observer was slow
	ObserverDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ducker_observer_drops_total",
			Help: "Total snapshots dropped on a full observer channel",
		},
	)
)

// Audio subsystem metrics
var (
	// SyncFailures counts snapshot sync failures by kind (device/sessions/watch)
	SyncFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixer_sync_failures_total",
			Help: "Total snapshot sync failures by kind",
		},
		[]string{"kind"},
	)

	// SessionErrors counts per-session control failures by operation
	SessionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixer_session_errors_total",
			Help: "Total per-session control failures by operation",
		},
		[]string{"op"},
	)

	// VolumeWrites counts successful volume writes made by the fader
	VolumeWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mixer_volume_writes_total",
			Help: "Total successful session volume writes",
		},
	)
)

// WebSocket metrics
var (
	// WebSocketConnectionsCurrent tracks connected status clients
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of connected status clients",
		},
	)

	// WebSocketConnectionsTotal counts connection attempts by result
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result",
		},
		[]string{"result"},
	)

	// WebSocketSlowClientsEvicted counts clients dropped for a full send buffer
	WebSocketSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_slow_clients_evicted_total",
			Help: "Total clients disconnected for not keeping up",
		},
	)
)
