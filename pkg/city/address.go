package city

import (
	"fmt"
	"strings"
)

// Address statuses.
const (
	AddressComplete   = "complete"
	AddressIncomplete = "incomplete"
)

// MailAddress is where paper appeals are sent.
type MailAddress struct {
	// Status is "complete" or "incomplete". Empty is read as complete and
	// must then satisfy the complete-address checks in Validate.
	Status       string `json:"status,omitempty" yaml:"status,omitempty"`
	Department   string `json:"department,omitempty" yaml:"department,omitempty"`
	AddressLine1 string `json:"address_line1,omitempty" yaml:"address_line1,omitempty"`
	AddressLine2 string `json:"address_line2,omitempty" yaml:"address_line2,omitempty"`
	City         string `json:"city,omitempty" yaml:"city,omitempty"`
	State        string `json:"state,omitempty" yaml:"state,omitempty"`
	Zip          string `json:"zip,omitempty" yaml:"zip,omitempty"`
	Country      string `json:"country,omitempty" yaml:"country,omitempty"`
}

// placeholderCities are values that have historically been substituted for a
// missing city and look like real data once printed on an envelope.
var placeholderCities = map[string]bool{
	"unknown city": true,
	"unknown":      true,
	"n/a":          true,
	"na":           true,
	"tbd":          true,
	"none":         true,
	"placeholder":  true,
	"city":         true,
}

// IsPlaceholderCity reports whether s is a known fallback sentinel rather than
// a place name.
func IsPlaceholderCity(s string) bool {
	return placeholderCities[strings.ToLower(strings.TrimSpace(s))]
}

// IsIncomplete reports whether the address must not be used for automatic
// mailing. A nil address is incomplete.
func (a *MailAddress) IsIncomplete() bool {
	if a == nil {
		return true
	}
	if a.Status == AddressIncomplete {
		return true
	}
	return a.AddressLine1 == "" || a.City == "" || a.State == "" || a.Zip == "" || IsPlaceholderCity(a.City)
}

// Lines renders the address as envelope lines, skipping empty parts.
func (a *MailAddress) Lines() []string {
	if a == nil {
		return nil
	}
	var lines []string
	for _, s := range []string{a.Department, a.AddressLine1, a.AddressLine2} {
		if s != "" {
			lines = append(lines, s)
		}
	}
	var last string
	switch {
	case a.City != "" && a.State != "":
		last = fmt.Sprintf("%s, %s %s", a.City, a.State, a.Zip)
	case a.City != "":
		last = strings.TrimSpace(a.City + " " + a.Zip)
	default:
		last = strings.TrimSpace(a.State + " " + a.Zip)
	}
	if last = strings.TrimSpace(last); last != "" {
		lines = append(lines, last)
	}
	if a.Country != "" && !strings.EqualFold(a.Country, "US") && !strings.EqualFold(a.Country, "USA") {
		lines = append(lines, a.Country)
	}
	return lines
}

// String returns the address on one line.
func (a *MailAddress) String() string {
	return strings.Join(a.Lines(), ", ")
}

func (a *MailAddress) clone() *MailAddress {
	if a == nil {
		return nil
	}
	out := *a
	return &out
}
