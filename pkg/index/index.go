// Package index builds the single ordered list of citation patterns used to
// classify citation numbers across every loaded city.
//
// Entries are ordered by descending specificity, then descending confidence,
// then insertion order. The first entry whose pattern fully matches a
// citation wins, so a city with a distinguishing prefix is always tried
// before a city that only constrains the digit count.
package index

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/city"
)

// Entry is one compiled citation pattern bound to its city and section.
type Entry struct {
	Pattern         string  `json:"pattern"`
	CityID          string  `json:"city_id"`
	SectionID       string  `json:"section_id"`
	Description     string  `json:"description,omitempty"`
	ConfidenceScore float64 `json:"confidence_score"`
	Specificity     int     `json:"specificity"`

	// Seq is the insertion position, the final tie-break.
	Seq int `json:"seq"`

	key string
	re  *regexp.Regexp
}

// Matches reports whether the entry's pattern matches all of s. Matching is
// anchored and case-insensitive whatever the configured pattern says.
func (e *Entry) Matches(s string) bool {
	return e.re.MatchString(s)
}

// Ambiguity is a pair of entries the ordering rule cannot separate: same
// pattern language, same specificity, same confidence. Shadowed can never win
// a match; the configuration needs a distinguishing signal.
type Ambiguity struct {
	Pattern  string
	Winner   Entry
	Shadowed Entry
}

func (a Ambiguity) Error() string {
	return fmt.Sprintf("pattern %q of %s/%s is shadowed by %q of %s/%s (specificity %d, confidence %.2f)",
		a.Shadowed.Pattern, a.Shadowed.CityID, a.Shadowed.SectionID,
		a.Winner.Pattern, a.Winner.CityID, a.Winner.SectionID,
		a.Winner.Specificity, a.Winner.ConfidenceScore)
}

// Index is an immutable ordered set of entries, safe for concurrent reads.
type Index struct {
	entries []*Entry
}

// Compile prepares the entries for one city, in the city's pattern order.
// Seq is left for Build to assign.
func Compile(c *city.City) ([]Entry, error) {
	entries := make([]Entry, 0, len(c.CitationPatterns))
	for i, p := range c.CitationPatterns {
		re, err := regexp.Compile(`(?i)^(?:` + stripAnchors(p.Regex) + `)$`)
		if err != nil {
			return nil, fmt.Errorf("compiling citation_patterns[%d] %q: %w", i, p.Regex, err)
		}
		spec, err := Specificity(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("scoring citation_patterns[%d]: %w", i, err)
		}
		key, err := normalizedKey(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("normalizing citation_patterns[%d]: %w", i, err)
		}
		entries = append(entries, Entry{
			Pattern:         p.Regex,
			CityID:          c.CityID,
			SectionID:       p.SectionID,
			Description:     p.Description,
			ConfidenceScore: p.ConfidenceScore,
			Specificity:     spec,
			key:             key,
			re:              re,
		})
	}
	return entries, nil
}

// Build orders entries given in insertion order and reports every ambiguous
// pair. Ambiguous entries stay in the index; the first inserted wins.
func Build(entries []Entry) (*Index, []Ambiguity) {
	idx := &Index{entries: make([]*Entry, len(entries))}
	for i := range entries {
		e := entries[i]
		e.Seq = i
		idx.entries[i] = &e
	}

	sort.SliceStable(idx.entries, func(i, j int) bool {
		a, b := idx.entries[i], idx.entries[j]
		if a.Specificity != b.Specificity {
			return a.Specificity > b.Specificity
		}
		if a.ConfidenceScore != b.ConfidenceScore {
			return a.ConfidenceScore > b.ConfidenceScore
		}
		return a.Seq < b.Seq
	})

	return idx, findAmbiguities(idx.entries)
}

// FromCities compiles and builds an index over cities in the given order.
func FromCities(cities []*city.City) (*Index, []Ambiguity, error) {
	var all []Entry
	for _, c := range cities {
		entries, err := Compile(c)
		if err != nil {
			return nil, nil, fmt.Errorf("city %s: %w", c.CityID, err)
		}
		all = append(all, entries...)
	}
	idx, amb := Build(all)
	return idx, amb, nil
}

type tieKey struct {
	key        string
	confidence float64
}

// findAmbiguities walks the sorted entries; equal keys imply equal
// specificity, so grouping by key and confidence finds every true tie.
func findAmbiguities(sorted []*Entry) []Ambiguity {
	first := make(map[tieKey]*Entry)
	var out []Ambiguity
	for _, e := range sorted {
		k := tieKey{key: e.key, confidence: e.ConfidenceScore}
		winner, seen := first[k]
		if !seen {
			first[k] = e
			continue
		}
		out = append(out, Ambiguity{Pattern: e.Pattern, Winner: *winner, Shadowed: *e})
	}
	return out
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Entries returns copies of the entries in match order.
func (idx *Index) Entries() []Entry {
	if idx == nil {
		return nil
	}
	out := make([]Entry, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = *e
	}
	return out
}

// At returns the entry at position i in match order.
func (idx *Index) At(i int) *Entry {
	return idx.entries[i]
}

// ForCity returns the entries belonging to one city, in match order.
func (idx *Index) ForCity(cityID string) []Entry {
	if idx == nil {
		return nil
	}
	var out []Entry
	for _, e := range idx.entries {
		if e.CityID == cityID {
			out = append(out, *e)
		}
	}
	return out
}
