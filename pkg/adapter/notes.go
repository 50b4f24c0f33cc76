package adapter

import "fmt"

// NoteKind classifies a decision the adapter made.
type NoteKind string

const (
	// NoteFiltered: a source field the canonical schema does not carry was dropped.
	NoteFiltered NoteKind = "filtered"
	// NoteRenamed: a legacy field name was mapped to its canonical name.
	NoteRenamed NoteKind = "renamed"
	// NotePromoted: a singular citation_pattern became a one-element list.
	NotePromoted NoteKind = "promoted"
	// NoteSynthesized: a structure was built from another (authority → section).
	NoteSynthesized NoteKind = "synthesized"
	// NoteDerived: a missing value was computed from other fields of the record.
	NoteDerived NoteKind = "derived"
	// NoteDefaulted: a missing value was filled from configured defaults.
	NoteDefaulted NoteKind = "defaulted"
	// NoteIncomplete: a value could not be derived; the address is unusable.
	NoteIncomplete NoteKind = "incomplete"
)

// Note records one adaptation decision for the load report.
type Note struct {
	Kind   NoteKind `json:"kind"`
	Field  string   `json:"field"`
	Detail string   `json:"detail,omitempty"`
}

func (n Note) String() string {
	if n.Detail == "" {
		return fmt.Sprintf("[%s] %s", n.Kind, n.Field)
	}
	return fmt.Sprintf("[%s] %s: %s", n.Kind, n.Field, n.Detail)
}

// AdaptationError reports a required field that is absent and cannot be
// derived from anything else in the record.
type AdaptationError struct {
	Field  string
	Reason string
}

func (e *AdaptationError) Error() string {
	return fmt.Sprintf("adapting legacy record: %s: %s", e.Field, e.Reason)
}

// CountNotes tallies notes by kind.
func CountNotes(notes []Note) map[NoteKind]int {
	counts := make(map[NoteKind]int)
	for _, n := range notes {
		counts[n.Kind]++
	}
	return counts
}
