package metrics

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	gatherMu sync.RWMutex
	gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	// defaultHandler also reports promhttp's own scrape metrics.
	defaultHandler = promhttp.Handler()

	scans = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reaper",
			Name:      "scans_total",
			Help:      "Number of completed process table scans.",
		},
	)
	scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reaper",
			Name:      "scan_duration_seconds",
			Help:      "Time spent per scan cycle, kills included.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	kills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reaper",
			Name:      "kills_total",
			Help:      "Number of expired processes terminated.",
		}, []string{"name"},
	)
	killFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reaper",
			Name:      "kill_failures_total",
			Help:      "Number of expired processes that could not be terminated.",
		}, []string{"name"},
	)
	matched = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "reaper",
			Name:      "matched_processes",
			Help:      "Processes matching the target name in the last scan.",
		}, []string{"name"},
	)
	nextWake = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reaper",
			Name:      "next_wake_seconds",
			Help:      "Sleep scheduled after the last scan.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
// When r is also a Gatherer, as *prometheus.Registry is, Handler serves it.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{scans, scanDuration, kills, killFailures, matched, nextWake}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	if g, ok := r.(prometheus.Gatherer); ok {
		gatherMu.Lock()
		gatherer = g
		gatherMu.Unlock()
	}
	regOK.Store(true)
	return nil
}

// Handler serves the registry the metrics were registered with, or the
// DefaultGatherer when that registerer cannot be gathered.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gatherMu.RLock()
		g := gatherer
		gatherMu.RUnlock()
		if g == prometheus.DefaultGatherer {
			defaultHandler.ServeHTTP(w, req)
			return
		}
		promhttp.HandlerFor(g, promhttp.HandlerOpts{}).ServeHTTP(w, req)
	})
}

// Below are lightweight helpers used by the reaper loop to record metrics.
// They no-op if Register hasn't been called.

func IncScan(seconds float64) {
	if regOK.Load() {
		scans.Inc()
		scanDuration.Observe(seconds)
	}
}

func IncKill(name string) {
	if regOK.Load() {
		kills.WithLabelValues(name).Inc()
	}
}

func IncKillFailure(name string) {
	if regOK.Load() {
		killFailures.WithLabelValues(name).Inc()
	}
}

func SetMatched(name string, n int) {
	if regOK.Load() {
		matched.WithLabelValues(name).Set(float64(n))
	}
}

func SetNextWake(seconds float64) {
	if regOK.Load() {
		nextWake.Set(seconds)
	}
}
