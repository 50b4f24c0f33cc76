package matcher

import (
	"fmt"
	"strings"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/index"
)

// Candidate is one index entry that matches a citation.
type Candidate struct {
	Position int         `json:"position"`
	Entry    index.Entry `json:"entry"`
}

// Explanation lists every entry that claims a citation, in index order. The
// first candidate is the one Match returns; the rest are shadowed by it.
type Explanation struct {
	Input      string      `json:"input"`
	Normalized string      `json:"normalized"`
	SnapshotID string      `json:"snapshot_id,omitempty"`
	Candidates []Candidate `json:"candidates"`
}

// Explain tests text against every entry of idx instead of stopping at the
// first match. Cross-city collisions show up as more than one candidate.
func Explain(idx *index.Index, text string) Explanation {
	ex := Explanation{Input: text, Normalized: Normalize(text)}
	if ex.Normalized == "" {
		return ex
	}
	for i := 0; i < idx.Len(); i++ {
		e := idx.At(i)
		if e.Matches(ex.Normalized) {
			ex.Candidates = append(ex.Candidates, Candidate{Position: i, Entry: *e})
		}
	}
	return ex
}

// Winner returns the candidate Match would pick, if any.
func (ex Explanation) Winner() (Candidate, bool) {
	if len(ex.Candidates) == 0 {
		return Candidate{}, false
	}
	return ex.Candidates[0], true
}

// Contested reports whether more than one city claims the citation.
func (ex Explanation) Contested() bool {
	for _, c := range ex.Candidates[min(1, len(ex.Candidates)):] {
		if c.Entry.CityID != ex.Candidates[0].Entry.CityID {
			return true
		}
	}
	return false
}

// String renders the explanation for terminal output.
func (ex Explanation) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Citation %q (normalized %q)\n", ex.Input, ex.Normalized))
	sb.WriteString(strings.Repeat("-", 50) + "\n")
	if len(ex.Candidates) == 0 {
		sb.WriteString("No pattern matched.\n")
		return sb.String()
	}
	for i, c := range ex.Candidates {
		mark := " "
		if i == 0 {
			mark = "*"
		}
		sb.WriteString(fmt.Sprintf("%s #%d %s/%s pattern=%q specificity=%d confidence=%.2f\n",
			mark, c.Position+1, c.Entry.CityID, c.Entry.SectionID,
			c.Entry.Pattern, c.Entry.Specificity, c.Entry.ConfidenceScore))
	}
	if ex.Contested() {
		sb.WriteString("Warning: more than one city claims this citation.\n")
	}
	return sb.String()
}
