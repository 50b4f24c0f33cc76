// Package metrics exposes Prometheus collectors for city loading and citation
// matching.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks snapshot loads, load-time configuration problems and
// request-time match outcomes.
type Metrics struct {
	LoadsTotal      *prometheus.CounterVec
	LoadDuration    prometheus.Histogram
	CitiesLoaded    prometheus.Gauge
	PatternsIndexed prometheus.Gauge
	LoadProblems    *prometheus.CounterVec

	MatchesTotal        *prometheus.CounterVec
	PoliciesResolved    prometheus.Counter
	IncompleteAddresses prometheus.Counter
}

// New creates the collectors and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry(); the binary passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "citereg_loads_total",
			Help: "Snapshot loads by result (ok, error)",
		}, []string{"result"}),
		LoadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "citereg_load_duration_seconds",
			Help:    "Duration of snapshot loads",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}),
		CitiesLoaded: f.NewGauge(prometheus.GaugeOpts{
			Name: "citereg_cities_loaded",
			Help: "Cities in the current snapshot",
		}),
		PatternsIndexed: f.NewGauge(prometheus.GaugeOpts{
			Name: "citereg_patterns_indexed",
			Help: "Citation patterns in the current pattern index",
		}),
		LoadProblems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "citereg_load_problems_total",
			Help: "Configuration problems found while loading, by kind",
		}, []string{"kind"}),
		MatchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "citereg_matches_total",
			Help: "Citation match attempts by outcome (matched, NoPatternMatched, EmptyCitation)",
		}, []string{"outcome"}),
		PoliciesResolved: f.NewCounter(prometheus.CounterOpts{
			Name: "citereg_policies_resolved_total",
			Help: "Policy bundles resolved",
		}),
		IncompleteAddresses: f.NewCounter(prometheus.CounterOpts{
			Name: "citereg_incomplete_addresses_total",
			Help: "Policy bundles whose mailing address blocks automatic mailing",
		}),
	}
}

// ObserveLoad records one load attempt. Call with time.Now() taken at the
// start of the load.
func (m *Metrics) ObserveLoad(start time.Time, err error) {
	m.LoadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.LoadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.LoadsTotal.WithLabelValues("ok").Inc()
}

// SetSnapshot records the size of a newly published snapshot.
func (m *Metrics) SetSnapshot(cities, patterns int) {
	m.CitiesLoaded.Set(float64(cities))
	m.PatternsIndexed.Set(float64(patterns))
}

// IncrementProblem records one load-time problem of the given kind.
func (m *Metrics) IncrementProblem(kind string) {
	m.LoadProblems.WithLabelValues(kind).Inc()
}

// ObserveMatch records a match outcome: "matched" or the failure reason.
func (m *Metrics) ObserveMatch(outcome string) {
	m.MatchesTotal.WithLabelValues(outcome).Inc()
}

// ObservePolicy records a resolved policy bundle.
func (m *Metrics) ObservePolicy(addressIncomplete bool) {
	m.PoliciesResolved.Inc()
	if addressIncomplete {
		m.IncompleteAddresses.Inc()
	}
}
