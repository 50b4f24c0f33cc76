// Package schema classifies raw city configuration documents into exactly one
// schema generation before anything reads their fields.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/city"
)

// Kind is the outcome of classifying a document.
type Kind int

const (
	// KindUnreadable: the bytes are neither a JSON object nor a YAML mapping
	// that looks like a city record.
	KindUnreadable Kind = iota
	// KindMalformed: an object, but neither generation's shape.
	KindMalformed
	// KindLegacy: a pre-canonical record that must go through the adapter.
	KindLegacy
	// KindCanonical: decodes strictly into city.City.
	KindCanonical
)

func (k Kind) String() string {
	switch k {
	case KindUnreadable:
		return "unreadable"
	case KindMalformed:
		return "malformed"
	case KindLegacy:
		return "legacy"
	case KindCanonical:
		return "canonical"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Encoding is the surface syntax a document was written in.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingYAML Encoding = "yaml"
)

// LegacyMarkers are top-level keys that only pre-canonical records carry.
var LegacyMarkers = []string{
	"citation_pattern",
	"authority",
	"verified_at",
	"needs_confirmation",
	"status",
}

// Document is a classified configuration document. Exactly one of Canonical,
// Legacy or Err is meaningful, according to Kind.
type Document struct {
	Source   string
	Kind     Kind
	Encoding Encoding

	// Canonical is set for KindCanonical. It has not been validated yet.
	Canonical *city.City

	// Legacy holds the raw top-level object for KindLegacy, re-encoded as JSON
	// regardless of the source encoding.
	Legacy map[string]json.RawMessage

	// Err explains KindUnreadable and KindMalformed.
	Err error
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Classify decodes data and decides its schema generation. It never returns
// an error: failures are reported through the Kind and Err of the result.
func Classify(source string, data []byte) Document {
	doc := Document{Source: source}

	obj, enc, err := decodeObject(data)
	if err != nil {
		doc.Kind = KindUnreadable
		doc.Err = err
		return doc
	}
	doc.Encoding = enc

	canonical, canonicalErr := decodeCanonical(obj)
	if canonicalErr == nil {
		doc.Kind = KindCanonical
		doc.Canonical = canonical
		return doc
	}

	if isLegacyShape(obj) {
		doc.Kind = KindLegacy
		doc.Legacy = obj
		return doc
	}

	doc.Kind = KindMalformed
	doc.Err = canonicalErr
	return doc
}

// decodeObject parses data into a top-level object keyed as JSON so later
// stages deal with one representation. The encoding is decided from the
// content: a document opening with '{' or '[' is JSON and nothing else, so
// broken JSON is never rescued by the more lenient YAML parser. Any other
// text is read as YAML and kept only when it is a mapping carrying at least
// one city record key.
func decodeObject(data []byte) (map[string]json.RawMessage, Encoding, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, "", errors.New("document is empty")
	}

	var obj map[string]json.RawMessage
	if trimmed[0] == '{' || trimmed[0] == '[' || bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, "", fmt.Errorf("invalid JSON: %w", err)
		}
		if obj == nil {
			return nil, "", errors.New("document is null")
		}
		return obj, EncodingJSON, nil
	}

	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, "", fmt.Errorf("not JSON and not YAML: %w", err)
	}
	m, ok := generic.(map[string]interface{})
	if !ok {
		return nil, "", fmt.Errorf("not JSON and YAML top level is %T, not a mapping", generic)
	}
	if !hasRecordKey(m) {
		return nil, "", fmt.Errorf("YAML mapping has none of the city record keys (keys: %v)", sortedKeys(m))
	}
	reencoded, err := json.Marshal(m)
	if err != nil {
		return nil, "", fmt.Errorf("re-encoding YAML document: %w", err)
	}
	if err := json.Unmarshal(reencoded, &obj); err != nil {
		return nil, "", fmt.Errorf("re-decoding YAML document: %w", err)
	}
	return obj, EncodingYAML, nil
}

// recordKeys are the top-level keys either schema generation defines, plus
// the legacy aliases the adapter understands for identity and patterns.
var recordKeys = []string{
	"city_id", "name", "jurisdiction", "state", "citation_patterns", "sections",
	"appeal_deadline_days", "appeal_mail_address", "phone_confirmation_policy",
	"verification_metadata", "city_name", "patterns",
}

func hasRecordKey(m map[string]interface{}) bool {
	for _, key := range recordKeys {
		if _, ok := m[key]; ok {
			return true
		}
	}
	for _, key := range LegacyMarkers {
		if _, ok := m[key]; ok {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decodeCanonical succeeds only for records that carry the canonical
// identifying keys, no legacy marker and no field the canonical schema does
// not define.
func decodeCanonical(obj map[string]json.RawMessage) (*city.City, error) {
	if markers := presentMarkers(obj); len(markers) > 0 {
		return nil, fmt.Errorf("legacy fields present: %v", markers)
	}
	for _, key := range []string{"city_id", "sections", "citation_patterns"} {
		if _, ok := obj[key]; !ok {
			return nil, fmt.Errorf("canonical field %q is missing", key)
		}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("re-encoding document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var c city.City
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decoding canonical record: %w", err)
	}
	return &c, nil
}

func isLegacyShape(obj map[string]json.RawMessage) bool {
	if len(presentMarkers(obj)) > 0 {
		return true
	}
	_, hasPatterns := obj["citation_patterns"]
	_, hasSections := obj["sections"]
	return hasPatterns && !hasSections
}

func presentMarkers(obj map[string]json.RawMessage) []string {
	var found []string
	for _, key := range LegacyMarkers {
		if _, ok := obj[key]; ok {
			found = append(found, key)
		}
	}
	sort.Strings(found)
	return found
}
