// Package city provides the canonical data model for per-jurisdiction citation
// rules and appeal policy, together with the structural validator every loaded
// record must pass.
package city

import (
	"sort"
)

// Jurisdiction levels a City can represent.
const (
	JurisdictionCity   = "city"
	JurisdictionCounty = "county"
	JurisdictionState  = "state"
)

// City is the canonical record for one jurisdiction. Once loaded it is never
// mutated; a reload replaces the whole collection.
type City struct {
	CityID       string `json:"city_id" yaml:"city_id"`
	Name         string `json:"name" yaml:"name"`
	Jurisdiction string `json:"jurisdiction" yaml:"jurisdiction"`
	State        string `json:"state" yaml:"state"`

	// CitationPatterns is ordered; earlier entries are inserted into the
	// pattern index first.
	CitationPatterns []CitationPattern `json:"citation_patterns" yaml:"citation_patterns"`

	Sections map[string]Section `json:"sections" yaml:"sections"`

	// City-level defaults, overridden per section.
	AppealMailAddress       *MailAddress `json:"appeal_mail_address,omitempty" yaml:"appeal_mail_address,omitempty"`
	PhoneConfirmationPolicy *PhonePolicy `json:"phone_confirmation_policy,omitempty" yaml:"phone_confirmation_policy,omitempty"`

	AppealDeadlineDays int `json:"appeal_deadline_days" yaml:"appeal_deadline_days"`

	VerificationMetadata *VerificationMetadata `json:"verification_metadata,omitempty" yaml:"verification_metadata,omitempty"`
}

// CitationPattern binds a citation regex to the section that issues it.
type CitationPattern struct {
	Regex           string  `json:"regex" yaml:"regex"`
	SectionID       string  `json:"section_id" yaml:"section_id"`
	Description     string  `json:"description,omitempty" yaml:"description,omitempty"`
	ConfidenceScore float64 `json:"confidence_score" yaml:"confidence_score"`
}

// Section is an issuing agency or department within a city.
type Section struct {
	Name                    string       `json:"name" yaml:"name"`
	AppealMailAddress       *MailAddress `json:"appeal_mail_address,omitempty" yaml:"appeal_mail_address,omitempty"`
	PhoneConfirmationPolicy *PhonePolicy `json:"phone_confirmation_policy,omitempty" yaml:"phone_confirmation_policy,omitempty"`
}

// PhonePolicy says whether an appeal must be confirmed by phone.
type PhonePolicy struct {
	Required bool   `json:"required" yaml:"required"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}

// VerificationMetadata is informational only.
type VerificationMetadata struct {
	LastUpdated     string  `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
	ConfidenceScore float64 `json:"confidence_score,omitempty" yaml:"confidence_score,omitempty"`
}

// Section returns the section with the given ID.
func (c *City) Section(sectionID string) (Section, bool) {
	s, ok := c.Sections[sectionID]
	return s, ok
}

// SectionIDs returns the city's section IDs in sorted order.
func (c *City) SectionIDs() []string {
	ids := make([]string, 0, len(c.Sections))
	for id := range c.Sections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy. The store hands out shared pointers; callers that
// need to modify a record (the adapter, tests) work on a clone.
func (c *City) Clone() *City {
	if c == nil {
		return nil
	}
	out := *c
	if c.CitationPatterns != nil {
		out.CitationPatterns = append([]CitationPattern(nil), c.CitationPatterns...)
	}
	if c.Sections != nil {
		out.Sections = make(map[string]Section, len(c.Sections))
		for id, s := range c.Sections {
			s.AppealMailAddress = s.AppealMailAddress.clone()
			s.PhoneConfirmationPolicy = s.PhoneConfirmationPolicy.clone()
			out.Sections[id] = s
		}
	}
	out.AppealMailAddress = c.AppealMailAddress.clone()
	out.PhoneConfirmationPolicy = c.PhoneConfirmationPolicy.clone()
	if c.VerificationMetadata != nil {
		vm := *c.VerificationMetadata
		out.VerificationMetadata = &vm
	}
	return &out
}

func (p *PhonePolicy) clone() *PhonePolicy {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}
