package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const canonicalSF = `{
  "city_id": "us-ca-san_francisco",
  "name": "San Francisco",
  "jurisdiction": "city",
  "state": "CA",
  "citation_patterns": [
    {"regex": "^[0-9]{9}$", "section_id": "sfmta", "description": "SFMTA", "confidence_score": 0.9}
  ],
  "sections": {
    "sfmta": {"name": "SFMTA"}
  },
  "appeal_deadline_days": 21
}`

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantKind Kind
		wantEnc  Encoding
	}{
		{
			name:     "canonical json",
			data:     canonicalSF,
			wantKind: KindCanonical,
			wantEnc:  EncodingJSON,
		},
		{
			name: "legacy singular pattern",
			data: `{"name": "Los Angeles", "state": "CA",
			        "citation_pattern": {"regex": "^[A-Z]{2}[0-9]{8}$"}}`,
			wantKind: KindLegacy,
			wantEnc:  EncodingJSON,
		},
		{
			name: "legacy authority",
			data: `{"name": "San Francisco", "state": "CA",
			        "citation_patterns": [{"regex": "^[0-9]{9}$"}],
			        "authority": {"name": "SFMTA"}}`,
			wantKind: KindLegacy,
			wantEnc:  EncodingJSON,
		},
		{
			name:     "plural patterns without sections is legacy",
			data:     `{"name": "Oakland", "state": "CA", "citation_patterns": [{"regex": "^[0-9]{8}$"}]}`,
			wantKind: KindLegacy,
			wantEnc:  EncodingJSON,
		},
		{
			name: "canonical shape with legacy marker is legacy",
			data: `{"city_id": "us-ca-oakland", "sections": {}, "citation_patterns": [],
			        "verified_at": "2023-04-01"}`,
			wantKind: KindLegacy,
			wantEnc:  EncodingJSON,
		},
		{
			name: "yaml canonical",
			data: `city_id: us-ca-oakland
name: Oakland
jurisdiction: city
state: CA
citation_patterns:
  - regex: "^OAK[0-9]{6}$"
    section_id: oakland_dot
    confidence_score: 0.8
sections:
  oakland_dot:
    name: Oakland DOT
appeal_deadline_days: 21
`,
			wantKind: KindCanonical,
			wantEnc:  EncodingYAML,
		},
		{
			name:     "unknown field in canonical record is malformed",
			data:     `{"city_id": "x", "sections": {}, "citation_patterns": [], "notes": "hi"}`,
			wantKind: KindMalformed,
			wantEnc:  EncodingJSON,
		},
		{
			name:     "unrelated object is malformed",
			data:     `{"hello": "world"}`,
			wantKind: KindMalformed,
			wantEnc:  EncodingJSON,
		},
		{
			name:     "plain text is unreadable",
			data:     "this is a README, not a city",
			wantKind: KindUnreadable,
		},
		{
			name:     "json array is unreadable",
			data:     `[1, 2, 3]`,
			wantKind: KindUnreadable,
		},
		{
			name:     "empty file is unreadable",
			data:     "  \n",
			wantKind: KindUnreadable,
		},
		{
			name:     "null is unreadable",
			data:     "null",
			wantKind: KindUnreadable,
		},
		{
			name: "json with trailing commas is unreadable",
			data: `{"city_id": "us-ca-san_diego", "sections": {"sd": {"name": "SD"},},
			        "citation_patterns": [{"regex": "^SD[0-9]{7}$", "section_id": "sd"},],}`,
			wantKind: KindUnreadable,
		},
		{
			name:     "note with a colon is unreadable",
			data:     "TODO: add Fresno, pattern unconfirmed",
			wantKind: KindUnreadable,
		},
		{
			name:     "yaml mapping without record keys is unreadable",
			data:     "owner: parking team\nreviewed: 2024-01-01\n",
			wantKind: KindUnreadable,
		},
		{
			name:     "yaml legacy record",
			data:     "name: Fresno\nstate: CA\ncitation_pattern:\n  regex: \"^F[0-9]{7}$\"\n",
			wantKind: KindLegacy,
			wantEnc:  EncodingYAML,
		},
		{
			name:     "truncated json is unreadable",
			data:     `{"city_id": "us-ca-`,
			wantKind: KindUnreadable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Classify("test", []byte(tt.data))
			assert.Equal(t, tt.wantKind, doc.Kind, "err = %v", doc.Err)
			assert.Equal(t, tt.wantEnc, doc.Encoding)
			switch doc.Kind {
			case KindCanonical:
				assert.NotNil(t, doc.Canonical)
				assert.Nil(t, doc.Legacy)
			case KindLegacy:
				assert.NotNil(t, doc.Legacy)
				assert.Nil(t, doc.Canonical)
			default:
				assert.Error(t, doc.Err)
			}
		})
	}
}

func TestClassifyCanonicalFields(t *testing.T) {
	doc := Classify("sf.json", []byte(canonicalSF))
	require.Equal(t, KindCanonical, doc.Kind)
	c := doc.Canonical
	assert.Equal(t, "us-ca-san_francisco", c.CityID)
	assert.Equal(t, 21, c.AppealDeadlineDays)
	require.Len(t, c.CitationPatterns, 1)
	assert.Equal(t, "sfmta", c.CitationPatterns[0].SectionID)
	assert.InDelta(t, 0.9, c.CitationPatterns[0].ConfidenceScore, 1e-9)
}

func TestClassifyStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(canonicalSF)...)
	doc := Classify("bom.json", data)
	assert.Equal(t, KindCanonical, doc.Kind)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "legacy", KindLegacy.String())
	assert.Equal(t, "canonical", KindCanonical.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
