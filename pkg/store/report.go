package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/adapter"
)

// ProblemKind classifies a load-time configuration problem.
type ProblemKind string

const (
	// UnreadableFile: the document could not be read or is not a JSON or
	// YAML object.
	UnreadableFile ProblemKind = "UnreadableFile"
	// MalformedRecord: an object matching neither schema generation.
	MalformedRecord ProblemKind = "MalformedRecord"
	// AdaptationError: a legacy record lacks a field that cannot be derived.
	AdaptationError ProblemKind = "AdaptationError"
	// ValidationError: the canonical record fails structural validation.
	ValidationError ProblemKind = "ValidationError"
	// DuplicateCity: a city_id already loaded from an earlier document.
	DuplicateCity ProblemKind = "DuplicateCity"
	// AmbiguousConfiguration: two patterns tie on every ordering criterion.
	// Both stay loaded; the first inserted wins.
	AmbiguousConfiguration ProblemKind = "AmbiguousConfiguration"
)

// Problem is one configuration defect found during a load. Only
// AmbiguousConfiguration leaves the affected city loaded.
type Problem struct {
	Kind   ProblemKind
	Source string
	CityID string
	Err    error

	// Notes are the adapter decisions made for a legacy record before it
	// failed, so a rejected city keeps its audit trail.
	Notes []adapter.Note
}

func (p Problem) Error() string {
	where := p.Source
	if p.CityID != "" {
		where = fmt.Sprintf("%s (%s)", p.Source, p.CityID)
	}
	return fmt.Sprintf("%s: %s: %v", p.Kind, where, p.Err)
}

func (p Problem) Unwrap() error { return p.Err }

func (p Problem) MarshalJSON() ([]byte, error) {
	msg := ""
	if p.Err != nil {
		msg = p.Err.Error()
	}
	return json.Marshal(struct {
		Kind    ProblemKind    `json:"kind"`
		Source  string         `json:"source"`
		CityID  string         `json:"city_id,omitempty"`
		Message string         `json:"message"`
		Notes   []adapter.Note `json:"notes,omitempty"`
	}{p.Kind, p.Source, p.CityID, msg, p.Notes})
}

// LoadReport summarizes one load. It is attached to the snapshot it built.
type LoadReport struct {
	SnapshotID string        `json:"snapshot_id"`
	LoadedAt   time.Time     `json:"loaded_at"`
	Duration   time.Duration `json:"duration"`

	// Documents counts every file the source listed.
	Documents int `json:"documents"`
	Loaded    int `json:"loaded"`
	Canonical int `json:"canonical"`
	Adapted   int `json:"adapted"`
	// Failed counts documents that did not produce a loaded city.
	Failed int `json:"failed"`

	// Cities lists loaded city IDs in sorted order.
	Cities []string `json:"cities"`
	// Notes holds the adapter's decisions for each adapted city.
	Notes    map[string][]adapter.Note `json:"notes,omitempty"`
	Problems []Problem                 `json:"problems,omitempty"`
}

// HasProblems reports whether the load found any configuration defect.
func (r *LoadReport) HasProblems() bool {
	return len(r.Problems) > 0
}

// ProblemsOf returns the problems of one kind, in report order.
func (r *LoadReport) ProblemsOf(kind ProblemKind) []Problem {
	var out []Problem
	for _, p := range r.Problems {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// String returns a one-line summary.
func (r *LoadReport) String() string {
	return fmt.Sprintf("snapshot %s: %d cities loaded from %d documents (%d canonical, %d adapted, %d failed, %d problems)",
		r.SnapshotID, r.Loaded, r.Documents, r.Canonical, r.Adapted, r.Failed, len(r.Problems))
}
