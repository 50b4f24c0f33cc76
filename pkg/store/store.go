// Package store owns the canonical city collection. It reads every document
// a Source provides, classifies and normalizes each one, validates the result
// and publishes cities and pattern index together as one immutable snapshot.
//
// Reads take the current snapshot with a single atomic load and never block.
// Loads are serialized; a load that fails as a whole leaves the previous
// snapshot in place.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/adapter"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/city"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/index"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/metrics"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/schema"
)

// ErrReloadInProgress is returned by TryLoad while another load runs.
var ErrReloadInProgress = errors.New("store: reload already in progress")

// DefaultDebounce is how long Watch waits for file events to settle.
const DefaultDebounce = 500 * time.Millisecond

// Store holds the current snapshot.
type Store struct {
	src      Source
	adapter  *adapter.Adapter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	debounce time.Duration
	now      func() time.Time

	loadMu  sync.Mutex
	current atomic.Pointer[Snapshot]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for load summaries and problems.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics enables load metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithAdapterOptions sets the defaults used when adapting legacy records.
func WithAdapterOptions(opts adapter.Options) Option {
	return func(s *Store) {
		s.adapter = adapter.New(opts)
	}
}

// WithDebounce sets how long Watch waits after the last file event.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		s.debounce = d
	}
}

// New creates a Store reading from src. It starts with an empty snapshot;
// call Load to populate it.
func New(src Source, opts ...Option) *Store {
	s := &Store{
		src:      src,
		adapter:  adapter.New(adapter.DefaultOptions()),
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(emptySnapshot())
	return s
}

// Load builds a new snapshot from the source and publishes it. Bad documents
// are reported and skipped. An error is returned only when the source itself
// fails or ctx is cancelled; the previous snapshot then stays current.
// Concurrent calls queue behind each other.
func (s *Store) Load(ctx context.Context) (*LoadReport, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.load(ctx)
}

// TryLoad is Load that fails with ErrReloadInProgress instead of waiting.
func (s *Store) TryLoad(ctx context.Context) (*LoadReport, error) {
	if !s.loadMu.TryLock() {
		return nil, ErrReloadInProgress
	}
	defer s.loadMu.Unlock()
	return s.load(ctx)
}

// outcome is the per-document result of decoding, adapting and validating.
type outcome struct {
	kind    schema.Kind
	city    *city.City
	notes   []adapter.Note
	problem *Problem
}

func (s *Store) load(ctx context.Context) (report *LoadReport, err error) {
	start := s.now()
	if s.metrics != nil {
		defer func() { s.metrics.ObserveLoad(start, err) }()
	}

	files, err := s.src.Files(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "city source unavailable, keeping current snapshot",
			"snapshot_id", s.Snapshot().ID,
			"error", err,
		)
		return nil, fmt.Errorf("listing city documents: %w", err)
	}

	outcomes := make([]outcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = s.process(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading city documents: %w", err)
	}

	report = &LoadReport{
		SnapshotID: uuid.NewString(),
		LoadedAt:   start,
		Documents:  len(files),
		Notes:      make(map[string][]adapter.Note),
	}

	// Files arrive in name order, so the first document to claim a city_id
	// keeps it.
	byID := make(map[string]string, len(files))
	kinds := make(map[string]schema.Kind, len(files))
	var cities []*city.City
	for i, o := range outcomes {
		if o.problem != nil {
			report.Problems = append(report.Problems, *o.problem)
			report.Failed++
			continue
		}
		id := o.city.CityID
		if first, dup := byID[id]; dup {
			report.Problems = append(report.Problems, Problem{
				Kind:   DuplicateCity,
				Source: files[i].Name,
				CityID: id,
				Err:    fmt.Errorf("city_id already loaded from %s", first),
			})
			report.Failed++
			continue
		}
		byID[id] = files[i].Name
		kinds[id] = o.kind
		cities = append(cities, o.city)
		if len(o.notes) > 0 {
			report.Notes[id] = o.notes
		}
	}

	sort.Slice(cities, func(i, j int) bool { return cities[i].CityID < cities[j].CityID })

	idx, kept := s.buildIndex(cities, byID, report)
	report.Loaded = len(kept)
	for _, c := range kept {
		report.Cities = append(report.Cities, c.CityID)
		if kinds[c.CityID] == schema.KindLegacy {
			report.Adapted++
		} else {
			report.Canonical++
		}
	}

	report.Duration = s.now().Sub(start)
	snap := newSnapshot(report.SnapshotID, start, kept, idx, report)
	s.current.Store(snap)

	s.logReport(ctx, report)
	if s.metrics != nil {
		s.metrics.SetSnapshot(snap.Len(), idx.Len())
		for _, p := range report.Problems {
			s.metrics.IncrementProblem(string(p.Kind))
		}
	}
	return report, nil
}

// buildIndex compiles each city's patterns in city_id order. A city whose
// patterns do not compile in anchored form is dropped.
func (s *Store) buildIndex(cities []*city.City, sources map[string]string, report *LoadReport) (*index.Index, []*city.City) {
	var entries []index.Entry
	kept := cities[:0:0]
	for _, c := range cities {
		e, err := index.Compile(c)
		if err != nil {
			report.Problems = append(report.Problems, Problem{
				Kind: ValidationError, Source: sources[c.CityID], CityID: c.CityID, Err: err,
				Notes: report.Notes[c.CityID],
			})
			report.Failed++
			delete(report.Notes, c.CityID)
			continue
		}
		entries = append(entries, e...)
		kept = append(kept, c)
	}

	idx, ambiguities := index.Build(entries)
	for _, a := range ambiguities {
		report.Problems = append(report.Problems, Problem{
			Kind:   AmbiguousConfiguration,
			Source: sources[a.Shadowed.CityID],
			CityID: a.Shadowed.CityID,
			Err:    a,
		})
	}
	return idx, kept
}

func (s *Store) process(f File) outcome {
	fail := func(kind ProblemKind, cityID string, err error) outcome {
		return outcome{problem: &Problem{Kind: kind, Source: f.Name, CityID: cityID, Err: err}}
	}
	if f.Err != nil {
		return fail(UnreadableFile, "", f.Err)
	}

	doc := schema.Classify(f.Name, f.Data)
	switch doc.Kind {
	case schema.KindUnreadable:
		return fail(UnreadableFile, "", doc.Err)
	case schema.KindMalformed:
		return fail(MalformedRecord, "", doc.Err)
	case schema.KindLegacy:
		c, notes, err := s.adapter.Adapt(doc.Legacy)
		if err != nil {
			o := fail(AdaptationError, "", err)
			o.problem.Notes = notes
			return o
		}
		if err := city.Validate(c); err != nil {
			o := fail(ValidationError, c.CityID, err)
			o.problem.Notes = notes
			return o
		}
		return outcome{kind: doc.Kind, city: c, notes: notes}
	default:
		c := doc.Canonical
		if err := city.Validate(c); err != nil {
			return fail(ValidationError, c.CityID, err)
		}
		return outcome{kind: doc.Kind, city: c}
	}
}

func (s *Store) logReport(ctx context.Context, r *LoadReport) {
	for _, p := range r.Problems {
		s.logger.WarnContext(ctx, "city configuration problem",
			"kind", p.Kind,
			"source", p.Source,
			"city_id", p.CityID,
			"error", p.Err,
		)
	}
	s.logger.InfoContext(ctx, "city snapshot loaded",
		"snapshot_id", r.SnapshotID,
		"documents", r.Documents,
		"cities", r.Loaded,
		"canonical", r.Canonical,
		"adapted", r.Adapted,
		"failed", r.Failed,
		"problems", len(r.Problems),
		"duration", r.Duration,
	)
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// City returns a city from the current snapshot.
func (s *Store) City(cityID string) (*city.City, bool) {
	return s.Snapshot().City(cityID)
}

// Cities returns the cities of the current snapshot in city_id order.
func (s *Store) Cities() []*city.City {
	return s.Snapshot().Cities()
}

// CitiesByState returns the current snapshot's cities in one state.
func (s *Store) CitiesByState(state string) []*city.City {
	return s.Snapshot().CitiesByState(state)
}

// Index returns the current pattern index.
func (s *Store) Index() *index.Index {
	return s.Snapshot().Index()
}

// CurrentIndex returns the current index together with its snapshot ID.
func (s *Store) CurrentIndex() (*index.Index, string) {
	return s.Snapshot().CurrentIndex()
}
