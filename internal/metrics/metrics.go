// Package metrics exposes Prometheus instrumentation for device traffic and
// print job progress.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counters
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanjob_device_commands_total",
			Help: "Total number of scancard commands by outcome",
		},
		[]string{"command", "outcome"}, // ok, device_error, failed
	)

	CommandRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanjob_device_command_retries_total",
			Help: "Total number of scancard command retries after transport or decode failures",
		},
		[]string{"command"},
	)

	LayersMarkedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanjob_layers_marked_total",
			Help: "Total number of layers marked to completion",
		},
	)

	SnapshotsSavedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanjob_snapshots_saved_total",
			Help: "Total number of job snapshot writes",
		},
		[]string{"success"}, // "true" or "false"
	)

	// Gauges
	JobState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scanjob_job_state",
			Help: "1 for the current print job state, 0 otherwise",
		},
		[]string{"state"},
	)

	JobProgressPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanjob_job_progress_percent",
			Help: "Progress of the current print job in percent",
		},
	)

	QueuedCommands = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanjob_device_queued_commands",
			Help: "Commands waiting for the device, including the one in flight",
		},
	)

	// Buckets: 5ms .. ~10s
	CommandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scanjob_device_command_duration_seconds",
			Help:    "Scancard command duration including retries",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"command"},
	)
)

// SetJobState marks state as the active job state.
func SetJobState(states []string, current string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		JobState.WithLabelValues(s).Set(v)
	}
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
