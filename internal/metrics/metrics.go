// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelTier   = "tier"
	labelResult = "result"
	labelStatus = "status"
)

// Spin results.
const (
	SpinStarted   = "started"
	SpinIgnored   = "ignored"
	SpinCompleted = "completed"
)

// Metric names follow wheel_<subsystem>_<name>.
var (
	// GeneratedTotal counts every wheel built by the API, sessions included.
	GeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wheel_generated_total",
		Help: "Wheels generated, by tier.",
	}, []string{labelTier})

	spins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wheel_spins_total",
		Help: "Spin requests, by result.",
	}, []string{labelResult})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wheel_sessions_active",
		Help: "Sessions currently held in memory.",
	})

	scanNonces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wheel_scan_nonces_evaluated_total",
		Help: "Nonces replayed by scans.",
	})

	scanHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wheel_scan_hits_total",
		Help: "Nonces that matched a scan target.",
	})

	scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wheel_scan_duration_seconds",
		Help:    "Scan wall time, by completion status.",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
	}, []string{labelStatus})
)

func WheelGenerated(tier string) { GeneratedTotal.WithLabelValues(tier).Inc() }

func Spin(result string) { spins.WithLabelValues(result).Inc() }

func SessionOpened() { activeSessions.Inc() }

func SessionClosed() { activeSessions.Dec() }

// ScanFinished records one completed scan. status is "ok" or "timeout".
func ScanFinished(evaluated, hits uint64, elapsed time.Duration, timedOut bool) {
	scanNonces.Add(float64(evaluated))
	scanHits.Add(float64(hits))
	status := "ok"
	if timedOut {
		status = "timeout"
	}
	scanDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}
