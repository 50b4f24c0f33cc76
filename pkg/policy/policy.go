// Package policy derives the appeal policy for a matched citation: where the
// appeal is mailed, by when, and whether the agency wants a phone call first.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/city"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/matcher"
)

// Sentinel errors for misuse of the resolver. An incomplete address is not an
// error; it is reported on the Bundle.
var (
	ErrNotMatched     = errors.New("policy: citation was not matched")
	ErrUnknownCity    = errors.New("policy: unknown city")
	ErrUnknownSection = errors.New("policy: unknown section")
)

// Where the mailing address in a Bundle came from.
const (
	AddressFromSection = "section"
	AddressFromCity    = "city"
	AddressNone        = "none"
)

// Bundle is the policy for one matched citation.
type Bundle struct {
	CityID    string `json:"city_id"`
	SectionID string `json:"section_id"`

	MailingAddress *city.MailAddress `json:"mailing_address,omitempty"`
	AddressSource  string            `json:"address_source"`

	// AddressIncomplete means the address must not be used for automatic
	// mailing. It is set whenever the address is missing or unusable.
	AddressIncomplete bool `json:"address_incomplete"`

	PhoneConfirmationRequired bool   `json:"phone_confirmation_required"`
	PhoneConfirmationMessage  string `json:"phone_confirmation_message,omitempty"`

	// Nil when no violation date was supplied.
	AppealDeadlineDate *city.Date `json:"appeal_deadline_date,omitempty"`
	DaysRemaining      *int       `json:"days_remaining,omitempty"`
}

// CanAutoMail reports whether the appeal may be sent without a human
// checking the address first.
func (b Bundle) CanAutoMail() bool {
	return b.MailingAddress != nil && !b.AddressIncomplete
}

// Expired reports whether the appeal deadline has passed.
func (b Bundle) Expired() bool {
	return b.DaysRemaining != nil && *b.DaysRemaining < 0
}

// CityLookup finds a loaded city by ID.
type CityLookup interface {
	City(cityID string) (*city.City, bool)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the time source used for DaysRemaining.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// Resolver turns match results into policy bundles. It only reads the cities
// it is given and is safe for concurrent use.
type Resolver struct {
	cities CityLookup
	now    func() time.Time
}

// NewResolver creates a Resolver over cities.
func NewResolver(cities CityLookup, opts ...Option) *Resolver {
	r := &Resolver{cities: cities, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve derives the policy for a successful match. violationDate may be
// nil, in which case the deadline fields are left nil.
func (r *Resolver) Resolve(res matcher.Result, violationDate *city.Date) (Bundle, error) {
	if !res.Matched {
		return Bundle{}, ErrNotMatched
	}
	c, ok := r.cities.City(res.CityID)
	if !ok {
		return Bundle{}, fmt.Errorf("%w: %s", ErrUnknownCity, res.CityID)
	}
	sec, ok := c.Section(res.SectionID)
	if !ok {
		return Bundle{}, fmt.Errorf("%w: %s/%s", ErrUnknownSection, res.CityID, res.SectionID)
	}
	return r.bundle(c, res.SectionID, sec, violationDate), nil
}

// ResolveSection derives the policy for a known city and section without
// going through the matcher, for callers that already know the agency.
func (r *Resolver) ResolveSection(cityID, sectionID string, violationDate *city.Date) (Bundle, error) {
	return r.Resolve(matcher.Result{Matched: true, CityID: cityID, SectionID: sectionID}, violationDate)
}

func (r *Resolver) bundle(c *city.City, sectionID string, sec city.Section, violationDate *city.Date) Bundle {
	b := Bundle{CityID: c.CityID, SectionID: sectionID, AddressSource: AddressNone}

	switch {
	case sec.AppealMailAddress != nil:
		b.MailingAddress = sec.AppealMailAddress
		b.AddressSource = AddressFromSection
	case c.AppealMailAddress != nil:
		b.MailingAddress = c.AppealMailAddress
		b.AddressSource = AddressFromCity
	}
	b.AddressIncomplete = b.MailingAddress.IsIncomplete()

	phone := sec.PhoneConfirmationPolicy
	if phone == nil {
		phone = c.PhoneConfirmationPolicy
	}
	if phone != nil {
		b.PhoneConfirmationRequired = phone.Required
		b.PhoneConfirmationMessage = phone.Message
	}

	if violationDate != nil {
		deadline := violationDate.AddDays(c.AppealDeadlineDays)
		remaining := city.FromTime(r.now()).DaysUntil(deadline)
		b.AppealDeadlineDate = &deadline
		b.DaysRemaining = &remaining
	}
	return b
}
