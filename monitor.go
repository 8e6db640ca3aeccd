// monitor.go - Command monitoring: structured logs and metrics

package minimgo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// CommandStartedEvent is emitted when a command is dispatched.
type CommandStartedEvent struct {
	OperationID string
	Database    string
	Namespace   string
	CommandName string
}

// CommandSucceededEvent is emitted when a command's response decoded
// with a truthy ok field.
type CommandSucceededEvent struct {
	CommandStartedEvent
	Duration time.Duration
}

// CommandFailedEvent is emitted for transport errors and for responses
// the server rejected.
type CommandFailedEvent struct {
	CommandStartedEvent
	Duration time.Duration
	Failure  string
}

// CommandMonitor observes the lifecycle of every command the engine
// executes. Implementations must be safe for concurrent use.
type CommandMonitor interface {
	Started(CommandStartedEvent)
	Succeeded(CommandSucceededEvent)
	Failed(CommandFailedEvent)
}

type nopMonitor struct{}

func (nopMonitor) Started(CommandStartedEvent)     {}
func (nopMonitor) Succeeded(CommandSucceededEvent) {}
func (nopMonitor) Failed(CommandFailedEvent)       {}

// LogMonitor logs one line per command lifecycle event.
type LogMonitor struct {
	log zerolog.Logger
}

// NewLogMonitor builds a monitor writing through the given zerolog
// logger. Started and succeeded events log at debug, failures at error.
func NewLogMonitor(logger zerolog.Logger) *LogMonitor {
	return &LogMonitor{log: logger}
}

func (m *LogMonitor) event(e CommandStartedEvent, ev *zerolog.Event) *zerolog.Event {
	return ev.
		Str("operation_id", e.OperationID).
		Str("command", e.CommandName).
		Str("ns", e.Namespace)
}

func (m *LogMonitor) Started(e CommandStartedEvent) {
	m.event(e, m.log.Debug()).Msg("command started")
}

func (m *LogMonitor) Succeeded(e CommandSucceededEvent) {
	m.event(e.CommandStartedEvent, m.log.Debug()).
		Dur("duration", e.Duration).
		Msg("command succeeded")
}

func (m *LogMonitor) Failed(e CommandFailedEvent) {
	m.event(e.CommandStartedEvent, m.log.Error()).
		Dur("duration", e.Duration).
		Str("failure", e.Failure).
		Msg("command failed")
}

// MetricsMonitor counts commands and failures per command name and
// observes command latency.
type MetricsMonitor struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetricsMonitor registers the engine's metrics on the given
// registerer and returns the monitor feeding them.
func NewMetricsMonitor(reg prometheus.Registerer) *MetricsMonitor {
	factory := promauto.With(reg)
	return &MetricsMonitor{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "minimgo_operations_total",
			Help: "Commands dispatched, by command name.",
		}, []string{"command"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "minimgo_operation_failures_total",
			Help: "Commands that failed, by command name.",
		}, []string{"command"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "minimgo_operation_duration_seconds",
			Help:    "Command round-trip latency, by command name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
	}
}

func (m *MetricsMonitor) Started(e CommandStartedEvent) {
	m.operations.WithLabelValues(e.CommandName).Inc()
}

func (m *MetricsMonitor) Succeeded(e CommandSucceededEvent) {
	m.duration.WithLabelValues(e.CommandName).Observe(e.Duration.Seconds())
}

func (m *MetricsMonitor) Failed(e CommandFailedEvent) {
	m.failures.WithLabelValues(e.CommandName).Inc()
	m.duration.WithLabelValues(e.CommandName).Observe(e.Duration.Seconds())
}

type multiMonitor []CommandMonitor

// MultiMonitor fans events out to several monitors. Nil entries are
// skipped.
func MultiMonitor(mons ...CommandMonitor) CommandMonitor {
	var out multiMonitor
	for _, m := range mons {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (mm multiMonitor) Started(e CommandStartedEvent) {
	for _, m := range mm {
		m.Started(e)
	}
}

func (mm multiMonitor) Succeeded(e CommandSucceededEvent) {
	for _, m := range mm {
		m.Succeeded(e)
	}
}

func (mm multiMonitor) Failed(e CommandFailedEvent) {
	for _, m := range mm {
		m.Failed(e)
	}
}
