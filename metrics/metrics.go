// Package metrics provides Prometheus metrics for probe sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted counts sessions by method.
	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gprobe_sessions_started_total",
		Help: "Total number of probe sessions started, by method.",
	}, []string{"method"})

	// SessionsFinished counts terminal transitions by method and outcome.
	// outcome is "complete" or the error kind.
	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gprobe_sessions_finished_total",
		Help: "Total number of probe sessions finished, by method and outcome.",
	}, []string{"method", "outcome"})

	SessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gprobe_session_duration_seconds",
		Help:    "Time from run to terminal status, by method.",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"method"})

	LinesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gprobe_lines_sent_total",
		Help: "Total number of probe sequence lines counted as sent.",
	})

	LinesAcked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gprobe_lines_acked_total",
		Help: "Total number of probe sequence lines acknowledged with ok.",
	})

	CalibrationWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gprobe_calibration_writes_total",
		Help: "Total number of calibration entries written, by key.",
	}, []string{"key"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gprobe_active_sessions",
		Help: "Number of sessions currently active (0 or 1 per connection).",
	})
)

// RecordStart marks a session start.
func RecordStart(method string) {
	SessionsStarted.WithLabelValues(method).Inc()
	ActiveSessions.Inc()
}

// RecordFinish marks a terminal transition.
func RecordFinish(method, outcome string, ran time.Duration) {
	SessionsFinished.WithLabelValues(method, outcome).Inc()
	ActiveSessions.Dec()
	if ran > 0 {
		SessionDuration.WithLabelValues(method).Observe(ran.Seconds())
	}
}

// RecordCalibrationWrite counts a store write.
func RecordCalibrationWrite(key string) {
	CalibrationWrites.WithLabelValues(key).Inc()
}
