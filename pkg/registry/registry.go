// Package registry is the entry point the appeal workflow talks to. It wires
// the city store, citation matcher and policy resolver together and records
// what they do in logs and metrics.
package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/adapter"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/city"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/matcher"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/metrics"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/policy"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/store"
)

// Registry answers citation lookups from the most recently loaded cities.
type Registry struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	storeOpts []store.Option
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for the registry and its store.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
		r.storeOpts = append(r.storeOpts, store.WithLogger(logger))
	}
}

// WithMetrics records loads, matches and resolutions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
		r.storeOpts = append(r.storeOpts, store.WithMetrics(m))
	}
}

// WithAdapterOptions sets the defaults for adapting legacy records.
func WithAdapterOptions(opts adapter.Options) Option {
	return func(r *Registry) {
		r.storeOpts = append(r.storeOpts, store.WithAdapterOptions(opts))
	}
}

// WithDebounce sets the quiet period Watch waits for before reloading.
func WithDebounce(d time.Duration) Option {
	return func(r *Registry) {
		r.storeOpts = append(r.storeOpts, store.WithDebounce(d))
	}
}

// WithClock sets the time source used for days remaining until a deadline.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates a Registry over src. Nothing is loaded until Load is called.
func New(src store.Source, opts ...Option) *Registry {
	r := &Registry{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.store = store.New(src, r.storeOpts...)
	return r
}

// Load (re)builds the city snapshot. See store.Store.Load.
func (r *Registry) Load(ctx context.Context) (*store.LoadReport, error) {
	return r.store.Load(ctx)
}

// Watch reloads on changes to the source directory until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	return r.store.Watch(ctx)
}

// Match finds the city and section that issued a citation. A citation that
// matches nothing is a normal result with Reason set.
func (r *Registry) Match(text string) matcher.Result {
	res := matcher.New(r.store).Match(text)
	r.observeMatch(res)
	return res
}

// Explain lists every pattern that claims a citation, winner first.
func (r *Registry) Explain(text string) matcher.Explanation {
	return matcher.New(r.store).Explain(text)
}

// ResolvePolicy derives the appeal policy for a match. violationDate may be
// nil. The city is read from the current snapshot; use Lookup to match and
// resolve against one snapshot.
func (r *Registry) ResolvePolicy(res matcher.Result, violationDate *city.Date) (policy.Bundle, error) {
	b, err := policy.NewResolver(r.store, policy.WithClock(r.now)).Resolve(res, violationDate)
	if err != nil {
		return b, err
	}
	r.observePolicy(b)
	return b, nil
}

// Lookup matches text and, when it matches, resolves its policy, reading one
// snapshot for both steps. The bundle is nil when nothing matched.
func (r *Registry) Lookup(text string, violationDate *city.Date) (matcher.Result, *policy.Bundle, error) {
	snap := r.store.Snapshot()
	res := matcher.New(snap).Match(text)
	r.observeMatch(res)
	if !res.Matched {
		return res, nil, nil
	}
	b, err := policy.NewResolver(snap, policy.WithClock(r.now)).Resolve(res, violationDate)
	if err != nil {
		return res, nil, err
	}
	r.observePolicy(b)
	return res, &b, nil
}

// GetCity returns a loaded city. The record is shared and must not be
// modified.
func (r *Registry) GetCity(cityID string) (*city.City, bool) {
	return r.store.City(cityID)
}

// Cities returns every loaded city in city_id order.
func (r *Registry) Cities() []*city.City {
	return r.store.Cities()
}

// CitiesByState returns the loaded cities of one state.
func (r *Registry) CitiesByState(state string) []*city.City {
	return r.store.CitiesByState(state)
}

// Snapshot returns the current snapshot.
func (r *Registry) Snapshot() *store.Snapshot {
	return r.store.Snapshot()
}

func (r *Registry) observeMatch(res matcher.Result) {
	outcome := "matched"
	if !res.Matched {
		outcome = string(res.Reason)
	}
	r.logger.Debug("citation lookup",
		"outcome", outcome,
		"city_id", res.CityID,
		"section_id", res.SectionID,
		"snapshot_id", res.SnapshotID,
	)
	if r.metrics != nil {
		r.metrics.ObserveMatch(outcome)
	}
}

func (r *Registry) observePolicy(b policy.Bundle) {
	if b.AddressIncomplete {
		r.logger.Warn("mailing address incomplete, automatic mailing blocked",
			"city_id", b.CityID,
			"section_id", b.SectionID,
			"address_source", b.AddressSource,
		)
	}
	if r.metrics != nil {
		r.metrics.ObservePolicy(b.AddressIncomplete)
	}
}
