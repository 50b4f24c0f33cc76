package city

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxAppealDeadlineDays bounds appeal_deadline_days.
const MaxAppealDeadlineDays = 365

var zipPattern = regexp.MustCompile(`^[0-9]{5}(-[0-9]{4})?$`)

// ValidationError is one structural problem in a city record, located by its
// field path (e.g. "sections.sfmta.appeal_mail_address.city").
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return "no errors"
	}
	if len(errs) == 1 {
		return errs[0].Error()
	}
	messages := make([]string, len(errs))
	for i, err := range errs {
		messages[i] = err.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(errs), strings.Join(messages, "\n  - "))
}

// Validate checks a canonical record. It returns nil when the record is
// usable; otherwise every problem found, not just the first.
func Validate(c *City) error {
	if c == nil {
		return ValidationErrors{{Field: "city", Message: "record is nil"}}
	}
	if errs := validateCity(c); len(errs) > 0 {
		return errs
	}
	return nil
}

func validateCity(c *City) ValidationErrors {
	var errs ValidationErrors

	if c.CityID == "" {
		errs = append(errs, ValidationError{Field: "city_id", Message: "required field is missing"})
	} else if !IsValidID(c.CityID) {
		errs = append(errs, ValidationError{
			Field:   "city_id",
			Message: "must be lowercase alphanumeric with hyphens or underscores",
			Value:   c.CityID,
		})
	}

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "required field is missing"})
	} else if IsPlaceholderCity(c.Name) {
		errs = append(errs, ValidationError{Field: "name", Message: "placeholder value is not a place name", Value: c.Name})
	}

	switch c.Jurisdiction {
	case JurisdictionCity, JurisdictionCounty, JurisdictionState:
	case "":
		errs = append(errs, ValidationError{Field: "jurisdiction", Message: "required field is missing"})
	default:
		errs = append(errs, ValidationError{Field: "jurisdiction", Message: "must be city, county or state", Value: c.Jurisdiction})
	}

	if c.State == "" {
		errs = append(errs, ValidationError{Field: "state", Message: "required field is missing"})
	} else if !isStateCode(c.State) {
		errs = append(errs, ValidationError{Field: "state", Message: "must be a two-letter uppercase state code", Value: c.State})
	}

	if c.AppealDeadlineDays < 1 || c.AppealDeadlineDays > MaxAppealDeadlineDays {
		errs = append(errs, ValidationError{
			Field:   "appeal_deadline_days",
			Message: fmt.Sprintf("must be between 1 and %d", MaxAppealDeadlineDays),
			Value:   c.AppealDeadlineDays,
		})
	}

	if len(c.Sections) == 0 {
		errs = append(errs, ValidationError{Field: "sections", Message: "at least one section is required"})
	}
	for _, id := range c.SectionIDs() {
		errs = append(errs, validateSection("sections."+id, id, c.Sections[id])...)
	}

	if len(c.CitationPatterns) == 0 {
		errs = append(errs, ValidationError{Field: "citation_patterns", Message: "at least one pattern is required"})
	}
	for i, p := range c.CitationPatterns {
		errs = append(errs, validatePattern(fmt.Sprintf("citation_patterns[%d]", i), p, c.Sections)...)
	}

	if c.AppealMailAddress != nil {
		errs = append(errs, validateAddress("appeal_mail_address", c.AppealMailAddress)...)
	}

	if vm := c.VerificationMetadata; vm != nil && (vm.ConfidenceScore < 0 || vm.ConfidenceScore > 1) {
		errs = append(errs, ValidationError{
			Field:   "verification_metadata.confidence_score",
			Message: "must be between 0 and 1",
			Value:   vm.ConfidenceScore,
		})
	}

	return errs
}

func validatePattern(field string, p CitationPattern, sections map[string]Section) ValidationErrors {
	var errs ValidationErrors

	if p.Regex == "" {
		errs = append(errs, ValidationError{Field: field + ".regex", Message: "pattern is required"})
	} else if _, err := regexp.Compile(p.Regex); err != nil {
		errs = append(errs, ValidationError{Field: field + ".regex", Message: "invalid regular expression: " + err.Error(), Value: p.Regex})
	}

	if p.SectionID == "" {
		errs = append(errs, ValidationError{Field: field + ".section_id", Message: "required field is missing"})
	} else if _, ok := sections[p.SectionID]; !ok {
		errs = append(errs, ValidationError{Field: field + ".section_id", Message: "references an undefined section", Value: p.SectionID})
	}

	if p.ConfidenceScore < 0 || p.ConfidenceScore > 1 {
		errs = append(errs, ValidationError{Field: field + ".confidence_score", Message: "must be between 0 and 1", Value: p.ConfidenceScore})
	}

	return errs
}

func validateSection(field, id string, s Section) ValidationErrors {
	var errs ValidationErrors

	if !IsValidID(id) {
		errs = append(errs, ValidationError{Field: field, Message: "section id must be lowercase alphanumeric with hyphens or underscores", Value: id})
	}
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, ValidationError{Field: field + ".name", Message: "required field is missing"})
	}
	if s.AppealMailAddress != nil {
		errs = append(errs, validateAddress(field+".appeal_mail_address", s.AppealMailAddress)...)
	}

	return errs
}

func validateAddress(field string, a *MailAddress) ValidationErrors {
	var errs ValidationErrors

	// A placeholder is rejected whatever the status: it is the one value that
	// would survive into an envelope looking legitimate.
	if a.City != "" && IsPlaceholderCity(a.City) {
		errs = append(errs, ValidationError{Field: field + ".city", Message: "placeholder value is not a place name", Value: a.City})
	}

	switch a.Status {
	case AddressIncomplete:
		return errs
	case "", AddressComplete:
	default:
		errs = append(errs, ValidationError{Field: field + ".status", Message: "must be complete or incomplete", Value: a.Status})
		return errs
	}

	required := []struct {
		name  string
		value string
	}{
		{"address_line1", a.AddressLine1},
		{"city", a.City},
		{"state", a.State},
		{"zip", a.Zip},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, ValidationError{
				Field:   field + "." + r.name,
				Message: "required for a complete address (mark status incomplete instead)",
			})
		}
	}

	if a.State != "" && !isStateCode(a.State) {
		errs = append(errs, ValidationError{Field: field + ".state", Message: "must be a two-letter uppercase state code", Value: a.State})
	}
	if a.Zip != "" && isDomestic(a.Country) && !zipPattern.MatchString(a.Zip) {
		errs = append(errs, ValidationError{Field: field + ".zip", Message: "must be a 5 or 9 digit ZIP code", Value: a.Zip})
	}

	return errs
}

// IsValidID reports whether id is usable as a city or section identifier.
func IsValidID(id string) bool {
	if id == "" {
		return false
	}
	if !isLowerAlnum(rune(id[0])) {
		return false
	}
	for _, c := range id[1:] {
		if !isLowerAlnum(c) && c != '-' && c != '_' {
			return false
		}
	}
	return true
}

func isLowerAlnum(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

func isStateCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func isDomestic(country string) bool {
	switch strings.ToUpper(country) {
	case "", "US", "USA", "UNITED STATES":
		return true
	}
	return false
}
