package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/adapter"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/metrics"
)

const canonicalSF = `{
  "city_id": "us-ca-san_francisco",
  "name": "San Francisco",
  "jurisdiction": "city",
  "state": "CA",
  "citation_patterns": [
    {"regex": "^[0-9]{9}$", "section_id": "sfmta", "description": "SFMTA citation", "confidence_score": 0.9}
  ],
  "sections": {
    "sfmta": {
      "name": "SFMTA",
      "appeal_mail_address": {
        "status": "complete",
        "department": "SFMTA Customer Service Center",
        "address_line1": "11 South Van Ness Avenue",
        "city": "San Francisco",
        "state": "CA",
        "zip": "94103",
        "country": "US"
      },
      "phone_confirmation_policy": {"required": false}
    }
  },
  "appeal_deadline_days": 21
}`

const legacyLA = `{
  "city_id": "la",
  "name": "Los Angeles",
  "state": "CA",
  "status": "active",
  "citation_pattern": {"pattern": "^[A-Z]{2}[0-9]{8,9}$", "confidence": 0.8},
  "authority": {
    "name": "LADOT",
    "address": {"address1": "PO Box 30247", "city": "Los Angeles", "zip_code": "90030"}
  },
  "deadline_days": 21
}`

const yamlOakland = `
city_id: us-ca-oakland
name: Oakland
jurisdiction: city
state: CA
citation_patterns:
  - regex: "^OAK[0-9]{6}$"
    section_id: oak
    confidence_score: 0.7
sections:
  oak:
    name: Oakland Parking Citation Assistance Center
appeal_deadline_days: 21
`

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
}

func mem(files map[string]string) MemSource {
	src := MemSource{}
	for k, v := range files {
		src[k] = []byte(v)
	}
	return src
}

func TestLoadCanonicalAndLegacy(t *testing.T) {
	s := New(mem(map[string]string{"sf.json": canonicalSF, "la.json": legacyLA}))

	report, err := s.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 1, report.Canonical)
	assert.Equal(t, 1, report.Adapted)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, report.Problems)
	assert.Equal(t, []string{"la", "us-ca-san_francisco"}, report.Cities)
	assert.NotEmpty(t, report.Notes["la"], "adapted cities carry their notes")
	assert.NotEmpty(t, report.SnapshotID)

	la, ok := s.City("la")
	require.True(t, ok)
	_, ok = la.Section("ladot")
	assert.True(t, ok)

	assert.Equal(t, report.SnapshotID, s.Snapshot().ID)
	assert.Equal(t, 2, s.Index().Len())
}

func TestLoadIsIdempotent(t *testing.T) {
	s := New(mem(map[string]string{"sf.json": canonicalSF, "la.json": legacyLA, "oak.yaml": yamlOakland}))

	first, err := s.Load(context.Background())
	require.NoError(t, err)
	cities1 := s.Cities()
	entries1 := s.Index().Entries()

	second, err := s.Load(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.SnapshotID, second.SnapshotID)
	assert.Equal(t, cities1, s.Cities())
	assert.Equal(t, entries1, s.Index().Entries())
}

func TestEveryPatternReferencesAnExistingSection(t *testing.T) {
	s := New(mem(map[string]string{"sf.json": canonicalSF, "la.json": legacyLA, "oak.yaml": yamlOakland}))
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	for _, c := range s.Cities() {
		for _, p := range c.CitationPatterns {
			_, ok := c.Sections[p.SectionID]
			assert.True(t, ok, "%s: pattern %q references missing section %q", c.CityID, p.Regex, p.SectionID)
		}
	}
}

func TestBadDocumentsDoNotAbortLoad(t *testing.T) {
	s := New(mem(map[string]string{
		"sf.json":         canonicalSF,
		"broken.json":     `{"city_id": `,
		"notes.txt":       "remember to call LADOT",
		"shape.json":      `{"hello": "world"}`,
		"noname.json":     `{"state": "CA", "citation_pattern": {"pattern": "^X[0-9]{5}$"}}`,
		"badregex.json":   `{"city_id": "us-ca-bad", "name": "Bad", "jurisdiction": "city", "state": "CA", "citation_patterns": [{"regex": "[0-9", "section_id": "s", "confidence_score": 0.5}], "sections": {"s": {"name": "S"}}, "appeal_deadline_days": 21}`,
		"empty.json":      "",
		"readme.md":       "# cities",
		"sub/oakland.yml": yamlOakland,
	}))

	report, err := s.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9, report.Documents)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 7, report.Failed)
	assert.ElementsMatch(t, []string{"us-ca-san_francisco", "us-ca-oakland"}, report.Cities)

	kinds := map[ProblemKind][]string{}
	for _, p := range report.Problems {
		kinds[p.Kind] = append(kinds[p.Kind], p.Source)
	}
	assert.ElementsMatch(t, []string{"broken.json", "notes.txt", "empty.json", "readme.md"}, kinds[UnreadableFile])
	assert.Equal(t, []string{"shape.json"}, kinds[MalformedRecord])
	assert.Equal(t, []string{"noname.json"}, kinds[AdaptationError])
	assert.Equal(t, []string{"badregex.json"}, kinds[ValidationError])

	var ae *adapter.AdaptationError
	require.True(t, errors.As(report.ProblemsOf(AdaptationError)[0].Err, &ae))
	assert.Equal(t, "name", ae.Field)
}

func TestInvalidJSONIsNotLoaded(t *testing.T) {
	s := New(mem(map[string]string{
		"bad.json": `{
  "city_id": "us-ca-san_diego",
  "name": "San Diego",
  "jurisdiction": "city",
  "state": "CA",
  "citation_patterns": [{"regex": "^SD[0-9]{7}$", "section_id": "sd", "confidence_score": 0.7},],
  "sections": {"sd": {"name": "San Diego Parking"},},
  "appeal_deadline_days": 21,
}`,
		"notes.txt": "TODO: add Fresno, pattern unconfirmed",
	}))

	report, err := s.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Loaded)
	assert.Empty(t, report.Cities)
	problems := report.ProblemsOf(UnreadableFile)
	require.Len(t, problems, 2)
	assert.Equal(t, "bad.json", problems[0].Source)
	assert.Equal(t, "notes.txt", problems[1].Source)
	assert.Empty(t, report.ProblemsOf(MalformedRecord))
}

func TestFailedLegacyRecordKeepsNotes(t *testing.T) {
	s := New(mem(map[string]string{
		"reno.json": `{"city_name": "Reno", "state": "NV", "authority": {"name": "Reno PD"}}`,
	}))

	report, err := s.Load(context.Background())
	require.NoError(t, err)

	problems := report.ProblemsOf(AdaptationError)
	require.Len(t, problems, 1)
	p := problems[0]
	require.NotEmpty(t, p.Notes)

	var renamed bool
	for _, n := range p.Notes {
		if n.Kind == adapter.NoteRenamed && n.Field == "city_name" {
			renamed = true
		}
	}
	assert.True(t, renamed, "notes: %v", p.Notes)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"notes"`)
}

func TestDuplicateCityFirstWins(t *testing.T) {
	dup := `{
  "city_id": "us-ca-san_francisco",
  "name": "San Francisco",
  "jurisdiction": "city",
  "state": "CA",
  "citation_patterns": [{"regex": "^SF[0-9]{6}$", "section_id": "x", "confidence_score": 0.5}],
  "sections": {"x": {"name": "X"}},
  "appeal_deadline_days": 30
}`
	s := New(mem(map[string]string{"a_sf.json": canonicalSF, "b_sf.json": dup}))

	report, err := s.Load(context.Background())
	require.NoError(t, err)

	problems := report.ProblemsOf(DuplicateCity)
	require.Len(t, problems, 1)
	assert.Equal(t, "b_sf.json", problems[0].Source)
	assert.Contains(t, problems[0].Error(), "a_sf.json")

	sf, ok := s.City("us-ca-san_francisco")
	require.True(t, ok)
	assert.Equal(t, 21, sf.AppealDeadlineDays)
}

func TestAmbiguousPatternsReportedButLoaded(t *testing.T) {
	atl := `{"city_id": "us-ga-atlanta", "name": "Atlanta", "jurisdiction": "city", "state": "GA",
  "citation_patterns": [{"regex": "^[0-9]{8}$", "section_id": "atl", "confidence_score": 0.6}],
  "sections": {"atl": {"name": "ATL"}}, "appeal_deadline_days": 30}`
	nyc := `{"city_id": "us-ny-new_york", "name": "New York", "jurisdiction": "city", "state": "NY",
  "citation_patterns": [{"regex": "\\d{8}", "section_id": "dof", "confidence_score": 0.6}],
  "sections": {"dof": {"name": "DOF"}}, "appeal_deadline_days": 30}`

	s := New(mem(map[string]string{"atl.json": atl, "nyc.json": nyc}))
	report, err := s.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 0, report.Failed)
	problems := report.ProblemsOf(AmbiguousConfiguration)
	require.Len(t, problems, 1)
	assert.Equal(t, "us-ny-new_york", problems[0].CityID)
	assert.Equal(t, "nyc.json", problems[0].Source)
	assert.Equal(t, "us-ga-atlanta", s.Index().At(0).CityID)
}

func TestSourceErrorKeepsSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"sf.json": canonicalSF})

	s := New(DirSource{Dir: dir})
	report, err := s.Load(context.Background())
	require.NoError(t, err)
	before := s.Snapshot()

	require.NoError(t, os.RemoveAll(dir))
	_, err = s.Load(context.Background())
	require.Error(t, err)

	assert.Same(t, before, s.Snapshot())
	_, ok := s.City("us-ca-san_francisco")
	assert.True(t, ok)
	assert.Equal(t, report.SnapshotID, s.Snapshot().ID)
}

func TestDirSourceReadsEveryFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"us-ca-san_francisco.json": canonicalSF,
		"la":                       legacyLA,
		"nested/oakland.yaml":      yamlOakland,
	})

	files, err := DirSource{Dir: dir}.Files(context.Background())
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		require.NoError(t, f.Err)
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"la", "nested/oakland.yaml", "us-ca-san_francisco.json"}, names)
}

func TestFSSource(t *testing.T) {
	fsys := fstest.MapFS{
		"cities/sf.json":  {Data: []byte(canonicalSF)},
		"cities/la.json":  {Data: []byte(legacyLA)},
		"other/skip.json": {Data: []byte(`{}`)},
	}
	s := New(FSSource{FS: fsys, Root: "cities"})
	report, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Loaded)

	_, err = New(FSSource{FS: fsys, Root: "missing"}).Load(context.Background())
	assert.Error(t, err)
}

func TestCitiesByState(t *testing.T) {
	ga := `{"city_id": "us-ga-atlanta", "name": "Atlanta", "jurisdiction": "city", "state": "GA",
  "citation_patterns": [{"regex": "^[0-9]{8}$", "section_id": "atl", "confidence_score": 0.6}],
  "sections": {"atl": {"name": "ATL"}}, "appeal_deadline_days": 30}`
	s := New(mem(map[string]string{"sf.json": canonicalSF, "oak.yaml": yamlOakland, "atl.json": ga}))
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	ca := s.CitiesByState("ca")
	require.Len(t, ca, 2)
	assert.Equal(t, "us-ca-oakland", ca[0].CityID)
	assert.Equal(t, "us-ca-san_francisco", ca[1].CityID)
	assert.Len(t, s.CitiesByState("GA"), 1)
	assert.Empty(t, s.CitiesByState("TX"))
}

func TestEmptyStoreBeforeLoad(t *testing.T) {
	s := New(MemSource{})
	assert.Equal(t, 0, s.Snapshot().Len())
	assert.Equal(t, 0, s.Index().Len())
	_, ok := s.City("anything")
	assert.False(t, ok)
}

// blockingSource holds Files until released, so a load can be kept in flight.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSource) Files(ctx context.Context) ([]File, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []File{{Name: "sf.json", Data: []byte(canonicalSF)}}, nil
}

func TestTryLoadRejectsConcurrentReload(t *testing.T) {
	src := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	s := New(src)

	done := make(chan error, 1)
	go func() {
		_, err := s.Load(context.Background())
		done <- err
	}()
	<-src.entered

	_, err := s.TryLoad(context.Background())
	assert.ErrorIs(t, err, ErrReloadInProgress)

	close(src.release)
	require.NoError(t, <-done)

	_, err = s.TryLoad(context.Background())
	assert.NoError(t, err)
}

func TestReadersSeeWholeSnapshots(t *testing.T) {
	s := New(mem(map[string]string{"sf.json": canonicalSF, "la.json": legacyLA}),
		WithLogger(slog.New(slog.DiscardHandler)))
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			_, _ = s.Load(ctx)
		}
	}()

	for i := 0; i < 200; i++ {
		snap := s.Snapshot()
		idx, id := snap.CurrentIndex()
		assert.Equal(t, snap.ID, id)
		assert.Equal(t, 2, snap.Len())
		assert.Equal(t, 2, idx.Len())
		for j := 0; j < idx.Len(); j++ {
			_, ok := snap.City(idx.At(j).CityID)
			assert.True(t, ok)
		}
	}
	cancel()
	wg.Wait()
}

func TestLoadMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := New(mem(map[string]string{"sf.json": canonicalSF, "bad.json": "{"}), WithMetrics(m))

	_, err := s.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CitiesLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadProblems.WithLabelValues(string(UnreadableFile))))
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"sf.json": canonicalSF})

	s := New(DirSource{Dir: dir}, WithDebounce(20*time.Millisecond))
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))

	// Any file name is picked up, not only *.json.
	writeFiles(t, dir, map[string]string{"oakland-config": yamlOakland})

	assert.Eventually(t, func() bool {
		_, ok := s.City("us-ca-oakland")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatchRequiresDirectory(t *testing.T) {
	s := New(MemSource{})
	assert.ErrorIs(t, s.Watch(context.Background()), ErrNotWatchable)
}
