// Package adapter converts legacy city configuration records into the
// canonical city.City shape. It is a pure transformation: every filtering,
// renaming, derivation and default it applies is returned as a Note so the
// load report can show exactly what changed.
//
// The adapter never invents a value that looks like real data. A mailing city
// it cannot derive from the record itself is left empty and the address is
// marked incomplete.
package adapter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/city"
)

// Options holds the explicit defaults the adapter may apply.
type Options struct {
	// DefaultDeadlineDays fills a missing appeal_deadline_days. Zero turns the
	// default off, making the field required.
	DefaultDeadlineDays int

	// DefaultPatternConfidence fills a missing confidence_score on a pattern.
	DefaultPatternConfidence float64
}

// DefaultOptions returns the defaults used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		DefaultDeadlineDays:      21,
		DefaultPatternConfidence: 0.5,
	}
}

// Adapter converts legacy records.
type Adapter struct {
	opts Options
}

// New creates an adapter with the given options.
func New(opts Options) *Adapter {
	return &Adapter{opts: opts}
}

// Adapt converts one legacy record. On failure the returned error is an
// *AdaptationError naming the field that could not be filled; the notes
// gathered up to that point are still returned.
func (a *Adapter) Adapt(raw map[string]json.RawMessage) (*city.City, []Note, error) {
	var notes []Note
	c, err := a.adapt(raw, &notes)
	if err != nil {
		return nil, notes, err
	}
	return c, notes, nil
}

func (a *Adapter) adapt(raw map[string]json.RawMessage, notes *[]Note) (*city.City, error) {
	top := newObject("", raw, notes)
	c := &city.City{}

	if err := a.identity(top, c); err != nil {
		return nil, err
	}

	cityAddr, err := a.address(top, c, "appeal_mail_address", "mail_address", "mailing_address", "address")
	if err != nil {
		return nil, err
	}
	c.AppealMailAddress = cityAddr

	if c.PhoneConfirmationPolicy, err = phonePolicy(top); err != nil {
		return nil, err
	}

	if err := a.deadline(top, c); err != nil {
		return nil, err
	}

	if c.VerificationMetadata, err = verification(top); err != nil {
		return nil, err
	}

	if err := a.sections(top, c); err != nil {
		return nil, err
	}

	if err := a.patterns(top, c); err != nil {
		return nil, err
	}

	if c.PhoneConfirmationPolicy == nil {
		c.PhoneConfirmationPolicy = &city.PhonePolicy{Required: false}
		top.note(NoteDefaulted, "phone_confirmation_policy", "absent; phone confirmation not required")
	}

	if c.AppealMailAddress == nil && !anySectionAddress(c) {
		top.note(NoteIncomplete, "appeal_mail_address", "no mailing address at city or section level")
	}

	// status and needs_confirmation are legacy-only and fall out here along
	// with any other unrecognized key.
	top.filter()
	return c, nil
}

// identity fills city_id, name, state and jurisdiction, deriving each from the
// others where the source omits it.
func (a *Adapter) identity(top *object, c *city.City) error {
	var err error
	if c.Name, err = top.str("name", "city_name", "display_name"); err != nil {
		return err
	}
	if c.CityID, err = top.str("city_id", "id"); err != nil {
		return err
	}
	state, err := top.str("state", "state_code")
	if err != nil {
		return err
	}
	c.State = strings.ToUpper(state)

	idState, idSlug, idCanonical := city.ParseCityID(c.CityID)

	if c.State == "" && idCanonical {
		c.State = idState
		top.note(NoteDerived, "state", fmt.Sprintf("%q from city_id", c.State))
	}
	if c.State == "" {
		state, from := addressState(top.raw)
		if state == "" {
			return &AdaptationError{Field: "state", Reason: "absent and neither city_id nor a mailing address gives a state"}
		}
		c.State = state
		top.note(NoteDerived, "state", fmt.Sprintf("%q from %s", c.State, from))
	}

	if c.Name == "" || city.IsPlaceholderCity(c.Name) {
		if c.Name != "" {
			top.note(NoteFiltered, "name", fmt.Sprintf("placeholder %q discarded", c.Name))
		}
		if !idCanonical {
			return &AdaptationError{Field: "name", Reason: "absent and city_id does not encode a name"}
		}
		c.Name = city.NameFromSlug(idSlug)
		top.note(NoteDerived, "name", fmt.Sprintf("%q from city_id", c.Name))
	}

	if c.CityID == "" {
		c.CityID = city.CityID(c.State, c.Name)
		if c.CityID == "" {
			return &AdaptationError{Field: "city_id", Reason: "absent and not derivable from name and state"}
		}
		top.note(NoteDerived, "city_id", fmt.Sprintf("%q from state and name", c.CityID))
	}

	if c.Jurisdiction, err = top.str("jurisdiction", "jurisdiction_type"); err != nil {
		return err
	}
	c.Jurisdiction = strings.ToLower(c.Jurisdiction)
	if c.Jurisdiction == "" {
		c.Jurisdiction = city.JurisdictionCity
		top.note(NoteDefaulted, "jurisdiction", city.JurisdictionCity)
	}
	return nil
}

func (a *Adapter) deadline(top *object, c *city.City) error {
	days, ok, err := top.integer("appeal_deadline_days", "deadline_days", "appeal_days")
	if err != nil {
		return err
	}
	if ok {
		c.AppealDeadlineDays = days
		return nil
	}
	if a.opts.DefaultDeadlineDays <= 0 {
		return &AdaptationError{Field: "appeal_deadline_days", Reason: "absent and no default configured"}
	}
	c.AppealDeadlineDays = a.opts.DefaultDeadlineDays
	top.note(NoteDefaulted, "appeal_deadline_days", fmt.Sprintf("%d from configuration", a.opts.DefaultDeadlineDays))
	return nil
}

func verification(top *object) (*city.VerificationMetadata, error) {
	vm := &city.VerificationMetadata{}
	found := false

	meta, err := top.child("verification_metadata", "verification")
	if err != nil {
		return nil, err
	}
	if meta != nil {
		found = true
		if vm.LastUpdated, err = meta.str("last_updated", "verified_at", "updated_at"); err != nil {
			return nil, err
		}
		if vm.ConfidenceScore, _, err = meta.float("confidence_score", "confidence"); err != nil {
			return nil, err
		}
		meta.filter()
	}

	if vm.LastUpdated == "" {
		last, err := top.str("verification_metadata.last_updated", "verified_at", "last_updated")
		if err != nil {
			return nil, err
		}
		if last != "" {
			vm.LastUpdated = last
			found = true
		}
	}

	if !found {
		return nil, nil
	}
	return vm, nil
}

// sections builds the sections map from, in order, a legacy sections map, an
// authority object, or, when neither exists, one section named after the
// city itself.
func (a *Adapter) sections(top *object, c *city.City) error {
	c.Sections = make(map[string]city.Section)

	if top.has("sections") {
		v, _ := top.take("sections")
		var m map[string]map[string]json.RawMessage
		if err := json.Unmarshal(v, &m); err != nil {
			return &AdaptationError{Field: "sections", Reason: "expected an object of section objects"}
		}
		for _, id := range sortedKeys(m) {
			so := newObject("sections."+id, m[id], top.notes)
			s, err := a.section(so, c, id)
			if err != nil {
				return err
			}
			c.Sections[id] = s
			so.filter()
		}
	}

	auth, err := top.child("authority", "issuing_authority")
	if err != nil {
		return err
	}
	if auth != nil {
		if err := a.authority(auth, c); err != nil {
			return err
		}
		auth.filter()
	}

	if len(c.Sections) == 0 {
		id := city.Slug(c.Name)
		c.Sections[id] = city.Section{Name: c.Name}
		top.note(NoteSynthesized, "sections."+id, "single section named after the city; uses the city-level address")
	}
	return nil
}

func (a *Adapter) authority(auth *object, c *city.City) error {
	ident, err := auth.str("id", "code", "agency_id")
	if err != nil {
		return err
	}
	name, err := auth.str("name", "agency", "department")
	if err != nil {
		return err
	}

	basis, source := ident, "id"
	if basis == "" {
		basis, source = name, "name"
	}
	id := city.Slug(basis)
	if id == "" {
		return &AdaptationError{Field: "authority.name", Reason: "authority has neither id nor name to derive a section id from"}
	}
	if _, exists := c.Sections[id]; exists {
		auth.note(NoteFiltered, "authority", fmt.Sprintf("section %q already defined by sections map", id))
		auth.used = markAll(auth.raw)
		return nil
	}
	if name == "" {
		name = basis
	}

	auth.note(NoteSynthesized, "sections."+id, fmt.Sprintf("from authority (section id from authority %s %q)", source, basis))

	s, err := a.sectionBody(auth, c, name)
	if err != nil {
		return err
	}
	c.Sections[id] = s
	return nil
}

func (a *Adapter) section(so *object, c *city.City, id string) (city.Section, error) {
	name, err := so.str("name", "agency", "department")
	if err != nil {
		return city.Section{}, err
	}
	if name == "" {
		name = strings.ToUpper(id)
		so.note(NoteDerived, so.field("name"), fmt.Sprintf("%q from section id", name))
	}
	return a.sectionBody(so, c, name)
}

func (a *Adapter) sectionBody(so *object, c *city.City, name string) (city.Section, error) {
	s := city.Section{Name: name}
	var err error
	if s.AppealMailAddress, err = a.address(so, c, "appeal_mail_address", "address", "mail_address", "mailing_address"); err != nil {
		return s, err
	}
	if s.PhoneConfirmationPolicy, err = phonePolicy(so); err != nil {
		return s, err
	}
	return s, nil
}

func (a *Adapter) patterns(top *object, c *city.City) error {
	var raws []map[string]json.RawMessage
	var paths []string

	if v, ok := top.take("citation_patterns", "patterns"); ok {
		var list []map[string]json.RawMessage
		if err := json.Unmarshal(v, &list); err != nil {
			return &AdaptationError{Field: "citation_patterns", Reason: "expected an array of pattern objects"}
		}
		for i, p := range list {
			raws = append(raws, p)
			paths = append(paths, fmt.Sprintf("citation_patterns[%d]", i))
		}
	}

	if v, ok := top.take("citation_pattern"); ok {
		var p map[string]json.RawMessage
		if err := json.Unmarshal(v, &p); err != nil {
			return &AdaptationError{Field: "citation_pattern", Reason: "expected a pattern object"}
		}
		path := fmt.Sprintf("citation_patterns[%d]", len(raws))
		raws = append(raws, p)
		paths = append(paths, path)
		top.note(NotePromoted, "citation_pattern", "promoted to "+path)
	}

	if len(raws) == 0 {
		return &AdaptationError{Field: "citation_patterns", Reason: "record defines no citation pattern"}
	}

	onlySection := ""
	if len(c.Sections) == 1 {
		for id := range c.Sections {
			onlySection = id
		}
	}

	for i, raw := range raws {
		po := newObject(paths[i], raw, top.notes)
		p := city.CitationPattern{}
		var err error

		if p.Regex, err = po.str("regex", "pattern", "format"); err != nil {
			return err
		}
		if p.Regex == "" {
			return &AdaptationError{Field: po.field("regex"), Reason: "pattern has no regex"}
		}
		if p.Description, err = po.str("description", "desc"); err != nil {
			return err
		}
		if p.SectionID, err = po.str("section_id", "section", "agency", "authority_id"); err != nil {
			return err
		}
		if p.SectionID != "" {
			if _, ok := c.Sections[p.SectionID]; !ok {
				// Legacy patterns name their authority the way the record
				// does ("SFMTA"); sections are keyed by its slug.
				if id := city.Slug(p.SectionID); id != "" {
					if _, ok := c.Sections[id]; ok {
						po.note(NoteDerived, po.field("section_id"), fmt.Sprintf("%q from reference %q", id, p.SectionID))
						p.SectionID = id
					}
				}
			}
		}
		if p.SectionID == "" {
			if onlySection == "" {
				return &AdaptationError{Field: po.field("section_id"), Reason: "absent and the city has more than one section"}
			}
			p.SectionID = onlySection
			po.note(NoteDerived, po.field("section_id"), fmt.Sprintf("%q, the only section", onlySection))
		}

		conf, ok, err := po.float("confidence_score", "confidence")
		if err != nil {
			return err
		}
		if !ok {
			conf = a.opts.DefaultPatternConfidence
			po.note(NoteDefaulted, po.field("confidence_score"), fmt.Sprintf("%.2f from configuration", conf))
		}
		p.ConfidenceScore = conf

		po.filter()
		c.CitationPatterns = append(c.CitationPatterns, p)
	}
	return nil
}

// address reads a mailing address and applies the default-filling rule: the
// mailing city may only come from the record's own name, and only when the
// record is a city; otherwise the address is marked incomplete.
func (a *Adapter) address(parent *object, c *city.City, canonical string, aliases ...string) (*city.MailAddress, error) {
	ao, err := parent.child(canonical, aliases...)
	if err != nil || ao == nil {
		return nil, err
	}

	addr := &city.MailAddress{}
	fields := []struct {
		dst     *string
		name    string
		aliases []string
	}{
		{&addr.Status, "status", nil},
		{&addr.Department, "department", []string{"agency", "attention", "attn"}},
		{&addr.AddressLine1, "address_line1", []string{"address1", "street", "line1", "street_address"}},
		{&addr.AddressLine2, "address_line2", []string{"address2", "line2", "suite"}},
		{&addr.City, "city", []string{"locality"}},
		{&addr.State, "state", []string{"region"}},
		{&addr.Zip, "zip", []string{"zip_code", "postal_code", "zipcode"}},
		{&addr.Country, "country", []string{"country_code"}},
	}
	for _, f := range fields {
		if *f.dst, err = ao.str(f.name, f.aliases...); err != nil {
			return nil, err
		}
	}
	ao.filter()

	switch addr.Status {
	case "", city.AddressComplete, city.AddressIncomplete:
	default:
		ao.note(NoteFiltered, ao.field("status"), fmt.Sprintf("unrecognized status %q discarded", addr.Status))
		addr.Status = ""
	}
	addr.State = strings.ToUpper(addr.State)

	if city.IsPlaceholderCity(addr.City) {
		ao.note(NoteFiltered, ao.field("city"), fmt.Sprintf("placeholder %q discarded", addr.City))
		addr.City = ""
	}

	if addr.City == "" {
		if c.Jurisdiction == city.JurisdictionCity && c.Name != "" {
			addr.City = c.Name
			ao.note(NoteDerived, ao.field("city"), fmt.Sprintf("%q from record name", c.Name))
		} else {
			addr.Status = city.AddressIncomplete
			ao.note(NoteIncomplete, ao.field("city"), "absent and not derivable; address must not be mailed automatically")
		}
	}

	if addr.State == "" && addr.City != "" {
		addr.State = c.State
		ao.note(NoteDerived, ao.field("state"), fmt.Sprintf("%q from record state", c.State))
	}

	if addr.Status != city.AddressIncomplete {
		var missing []string
		if addr.AddressLine1 == "" {
			missing = append(missing, "address_line1")
		}
		if addr.Zip == "" {
			missing = append(missing, "zip")
		}
		if len(missing) > 0 {
			addr.Status = city.AddressIncomplete
			ao.note(NoteIncomplete, ao.path, "missing "+strings.Join(missing, ", "))
		} else {
			addr.Status = city.AddressComplete
		}
	}
	return addr, nil
}

func phonePolicy(o *object) (*city.PhonePolicy, error) {
	po, err := o.child("phone_confirmation_policy", "phone_policy")
	if err != nil {
		return nil, err
	}
	if po != nil {
		p := &city.PhonePolicy{}
		if p.Required, _, err = po.boolean("required", "phone_confirmation_required"); err != nil {
			return nil, err
		}
		if p.Message, err = po.str("message", "phone_message"); err != nil {
			return nil, err
		}
		po.filter()
		return p, nil
	}

	required, ok, err := o.boolean("phone_confirmation_policy.required", "phone_confirmation_required", "requires_phone_confirmation")
	if err != nil {
		return nil, err
	}
	message, err := o.str("phone_confirmation_policy.message", "phone_confirmation_message", "phone_message")
	if err != nil {
		return nil, err
	}
	if !ok && message == "" {
		return nil, nil
	}
	return &city.PhonePolicy{Required: required, Message: message}, nil
}

var (
	addressKeys   = []string{"appeal_mail_address", "mail_address", "mailing_address", "address"}
	authorityKeys = []string{"authority", "issuing_authority"}
)

// addressState looks for a two-letter state in the city-level address, then
// in the authority's address, without consuming either.
func addressState(raw map[string]json.RawMessage) (state, from string) {
	if st, key := stateIn(raw); st != "" {
		return st, key + ".state"
	}
	for _, ak := range authorityKeys {
		var auth map[string]json.RawMessage
		if json.Unmarshal(raw[ak], &auth) != nil {
			continue
		}
		if st, key := stateIn(auth); st != "" {
			return st, ak + "." + key + ".state"
		}
	}
	return "", ""
}

func stateIn(raw map[string]json.RawMessage) (string, string) {
	for _, key := range addressKeys {
		var addr map[string]json.RawMessage
		if json.Unmarshal(raw[key], &addr) != nil {
			continue
		}
		for _, field := range []string{"state", "region"} {
			var st string
			if json.Unmarshal(addr[field], &st) != nil {
				continue
			}
			if st = strings.ToUpper(strings.TrimSpace(st)); len(st) == 2 {
				return st, key
			}
		}
	}
	return "", ""
}

func anySectionAddress(c *city.City) bool {
	for _, s := range c.Sections {
		if s.AppealMailAddress != nil {
			return true
		}
	}
	return false
}

func markAll(raw map[string]json.RawMessage) map[string]bool {
	used := make(map[string]bool, len(raw))
	for k := range raw {
		used[k] = true
	}
	return used
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
