package adapter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// object reads fields from one raw legacy JSON object, remembering which
// keys were consumed so that everything else can be reported as filtered.
type object struct {
	path  string
	raw   map[string]json.RawMessage
	used  map[string]bool
	notes *[]Note
}

func newObject(path string, raw map[string]json.RawMessage, notes *[]Note) *object {
	return &object{
		path:  path,
		raw:   raw,
		used:  make(map[string]bool, len(raw)),
		notes: notes,
	}
}

func (o *object) field(name string) string {
	if o.path == "" {
		return name
	}
	return o.path + "." + name
}

func (o *object) note(kind NoteKind, field, detail string) {
	*o.notes = append(*o.notes, Note{Kind: kind, Field: field, Detail: detail})
}

// take returns the value stored under the canonical key or, failing that, the
// first alias present. Alias use is noted as a rename; an alias shadowed by
// the canonical key is left unconsumed and later reported as filtered.
func (o *object) take(canonical string, aliases ...string) (json.RawMessage, bool) {
	v, _, ok := o.takeKey(canonical, aliases...)
	return v, ok
}

// takeKey is take that also reports which source key supplied the value.
func (o *object) takeKey(canonical string, aliases ...string) (json.RawMessage, string, bool) {
	if v, ok := o.raw[canonical]; ok {
		o.used[canonical] = true
		if !isNull(v) {
			return v, canonical, true
		}
	}
	for _, alias := range aliases {
		v, ok := o.raw[alias]
		if !ok {
			continue
		}
		o.used[alias] = true
		if isNull(v) {
			continue
		}
		o.note(NoteRenamed, o.field(alias), "mapped to "+o.field(canonical))
		return v, alias, true
	}
	return nil, "", false
}

func (o *object) has(key string) bool {
	v, ok := o.raw[key]
	return ok && !isNull(v)
}

func (o *object) str(canonical string, aliases ...string) (string, error) {
	v, ok := o.take(canonical, aliases...)
	if !ok {
		return "", nil
	}
	s, err := looseString(v)
	if err != nil {
		return "", &AdaptationError{Field: o.field(canonical), Reason: err.Error()}
	}
	return strings.TrimSpace(s), nil
}

func (o *object) integer(canonical string, aliases ...string) (int, bool, error) {
	v, ok := o.take(canonical, aliases...)
	if !ok {
		return 0, false, nil
	}
	n, err := looseInt(v)
	if err != nil {
		return 0, false, &AdaptationError{Field: o.field(canonical), Reason: err.Error()}
	}
	return n, true, nil
}

func (o *object) float(canonical string, aliases ...string) (float64, bool, error) {
	v, ok := o.take(canonical, aliases...)
	if !ok {
		return 0, false, nil
	}
	f, err := looseFloat(v)
	if err != nil {
		return 0, false, &AdaptationError{Field: o.field(canonical), Reason: err.Error()}
	}
	return f, true, nil
}

func (o *object) boolean(canonical string, aliases ...string) (bool, bool, error) {
	v, ok := o.take(canonical, aliases...)
	if !ok {
		return false, false, nil
	}
	b, err := looseBool(v)
	if err != nil {
		return false, false, &AdaptationError{Field: o.field(canonical), Reason: err.Error()}
	}
	return b, true, nil
}

// child returns a nested object. Notes about its fields are reported under
// the source key the object was found at.
func (o *object) child(canonical string, aliases ...string) (*object, error) {
	v, key, ok := o.takeKey(canonical, aliases...)
	if !ok {
		return nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, &AdaptationError{Field: o.field(canonical), Reason: "expected an object"}
	}
	return newObject(o.field(key), m, o.notes), nil
}

// filter reports every key that was not consumed, in sorted order.
func (o *object) filter() {
	keys := make([]string, 0, len(o.raw))
	for k := range o.raw {
		if !o.used[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.note(NoteFiltered, o.field(k), "not part of the canonical schema: "+preview(o.raw[k]))
	}
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}

func preview(v json.RawMessage) string {
	s := strings.TrimSpace(string(v))
	if len(s) > 40 {
		return s[:37] + "..."
	}
	return s
}

func looseString(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("expected a string, got %s", preview(v))
}

func looseInt(v json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(v, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("expected an integer, got %s", preview(v))
}

func looseFloat(v json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("expected a number, got %s", preview(v))
}

func looseBool(v json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "y", "1":
			return true, nil
		case "false", "no", "n", "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("expected a boolean, got %s", preview(v))
}
