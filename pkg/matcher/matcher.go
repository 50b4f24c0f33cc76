// Package matcher resolves a citation number to the city and section whose
// pattern claims it, walking the pattern index in its fixed order.
package matcher

import (
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/index"
)

// Reason explains an unsuccessful match.
type Reason string

const (
	// NoPatternMatched: the citation is well formed text but no city claims it.
	NoPatternMatched Reason = "NoPatternMatched"
	// EmptyCitation: nothing was left to match after normalization.
	EmptyCitation Reason = "EmptyCitation"
)

// Result is the outcome of matching one citation. A failed match is a normal
// result, not an error.
type Result struct {
	Matched         bool    `json:"matched"`
	CityID          string  `json:"city_id,omitempty"`
	SectionID       string  `json:"section_id,omitempty"`
	PatternUsed     string  `json:"pattern_used,omitempty"`
	ConfidenceScore float64 `json:"confidence_score"`
	Specificity     int     `json:"specificity,omitempty"`
	Reason          Reason  `json:"reason,omitempty"`

	// Normalized is the text the patterns were tested against.
	Normalized string `json:"normalized"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

// IndexSource supplies the index to match against. Implementations must
// return an index and snapshot ID taken from the same snapshot.
type IndexSource interface {
	CurrentIndex() (idx *index.Index, snapshotID string)
}

// Match returns the first entry of idx whose pattern matches the whole
// normalized citation. The caller's text is not modified.
func Match(idx *index.Index, text string) Result {
	norm := Normalize(text)
	if norm == "" {
		return Result{Reason: EmptyCitation}
	}
	for i := 0; i < idx.Len(); i++ {
		e := idx.At(i)
		if e.Matches(norm) {
			return Result{
				Matched:         true,
				CityID:          e.CityID,
				SectionID:       e.SectionID,
				PatternUsed:     e.Pattern,
				ConfidenceScore: e.ConfidenceScore,
				Specificity:     e.Specificity,
				Normalized:      norm,
			}
		}
	}
	return Result{Reason: NoPatternMatched, Normalized: norm}
}

// Matcher matches against whatever index its source currently publishes.
// It holds no state of its own and is safe for concurrent use.
type Matcher struct {
	src IndexSource
}

// New creates a Matcher reading from src.
func New(src IndexSource) *Matcher {
	return &Matcher{src: src}
}

// Match reads the current index once and matches text against it.
func (m *Matcher) Match(text string) Result {
	idx, id := m.src.CurrentIndex()
	r := Match(idx, text)
	r.SnapshotID = id
	return r
}

// Explain reads the current index once and lists every entry claiming text.
func (m *Matcher) Explain(text string) Explanation {
	idx, id := m.src.CurrentIndex()
	ex := Explain(idx, text)
	ex.SnapshotID = id
	return ex
}
