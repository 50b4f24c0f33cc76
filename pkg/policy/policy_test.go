package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/city"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/matcher"
)

type cityMap map[string]*city.City

func (m cityMap) City(id string) (*city.City, bool) {
	c, ok := m[id]
	return c, ok
}

func sfAddress() *city.MailAddress {
	return &city.MailAddress{
		Status:       city.AddressComplete,
		Department:   "SFMTA Customer Service Center",
		AddressLine1: "11 South Van Ness Avenue",
		City:         "San Francisco",
		State:        "CA",
		Zip:          "94103",
	}
}

func fixtures() cityMap {
	return cityMap{
		"us-ca-san_francisco": {
			CityID:             "us-ca-san_francisco",
			Name:               "San Francisco",
			AppealDeadlineDays: 21,
			AppealMailAddress:  &city.MailAddress{AddressLine1: "1 Dr Carlton B Goodlett Pl", City: "San Francisco", State: "CA", Zip: "94102"},
			PhoneConfirmationPolicy: &city.PhonePolicy{
				Required: true,
				Message:  "Call 311 before mailing.",
			},
			Sections: map[string]city.Section{
				"sfmta": {
					Name:                    "SFMTA",
					AppealMailAddress:       sfAddress(),
					PhoneConfirmationPolicy: &city.PhonePolicy{Required: false},
				},
				"sfpd": {Name: "SFPD"},
			},
		},
		"us-ca-oakland": {
			CityID:             "us-ca-oakland",
			Name:               "Oakland",
			AppealDeadlineDays: 30,
			Sections: map[string]city.Section{
				"oak": {Name: "Oakland DOT"},
			},
		},
		"us-ca-alameda_county": {
			CityID:             "us-ca-alameda_county",
			Name:               "Alameda County",
			AppealDeadlineDays: 21,
			Sections: map[string]city.Section{
				"acso": {
					Name: "Sheriff",
					AppealMailAddress: &city.MailAddress{
						Status:       city.AddressIncomplete,
						AddressLine1: "1401 Lakeside Dr",
						State:        "CA",
						Zip:          "94612",
					},
				},
			},
		},
	}
}

func matched(cityID, sectionID string) matcher.Result {
	return matcher.Result{Matched: true, CityID: cityID, SectionID: sectionID}
}

func fixedClock(s string) func() time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func TestDeadlineFromViolationDate(t *testing.T) {
	r := NewResolver(fixtures(), WithClock(fixedClock("2024-01-10")))
	violation := city.Date{Year: 2024, Month: 1, Day: 1}

	b, err := r.Resolve(matched("us-ca-san_francisco", "sfmta"), &violation)
	require.NoError(t, err)
	require.NotNil(t, b.AppealDeadlineDate)
	assert.Equal(t, "2024-01-22", b.AppealDeadlineDate.String())
	require.NotNil(t, b.DaysRemaining)
	assert.Equal(t, 12, *b.DaysRemaining)
	assert.False(t, b.Expired())
}

func TestDeadlineOmittedWithoutDate(t *testing.T) {
	r := NewResolver(fixtures())
	b, err := r.Resolve(matched("us-ca-san_francisco", "sfmta"), nil)
	require.NoError(t, err)
	assert.Nil(t, b.AppealDeadlineDate)
	assert.Nil(t, b.DaysRemaining)
	assert.False(t, b.Expired())
}

func TestExpiredDeadline(t *testing.T) {
	r := NewResolver(fixtures(), WithClock(fixedClock("2024-03-01")))
	violation := city.Date{Year: 2024, Month: 1, Day: 1}
	b, err := r.Resolve(matched("us-ca-oakland", "oak"), &violation)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", b.AppealDeadlineDate.String())
	assert.True(t, b.Expired())
}

func TestAddressSelection(t *testing.T) {
	r := NewResolver(fixtures())

	tests := []struct {
		name       string
		cityID     string
		sectionID  string
		source     string
		incomplete bool
		line1      string
	}{
		{"section address wins", "us-ca-san_francisco", "sfmta", AddressFromSection, false, "11 South Van Ness Avenue"},
		{"city default when section has none", "us-ca-san_francisco", "sfpd", AddressFromCity, false, "1 Dr Carlton B Goodlett Pl"},
		{"no address anywhere", "us-ca-oakland", "oak", AddressNone, true, ""},
		{"incomplete status propagates", "us-ca-alameda_county", "acso", AddressFromSection, true, "1401 Lakeside Dr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := r.Resolve(matched(tt.cityID, tt.sectionID), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.source, b.AddressSource)
			assert.Equal(t, tt.incomplete, b.AddressIncomplete)
			assert.Equal(t, !tt.incomplete, b.CanAutoMail())
			if tt.line1 == "" {
				assert.Nil(t, b.MailingAddress)
			} else {
				require.NotNil(t, b.MailingAddress)
				assert.Equal(t, tt.line1, b.MailingAddress.AddressLine1)
			}
		})
	}
}

func TestPhonePolicy(t *testing.T) {
	r := NewResolver(fixtures())

	b, err := r.Resolve(matched("us-ca-san_francisco", "sfmta"), nil)
	require.NoError(t, err)
	assert.False(t, b.PhoneConfirmationRequired, "section policy is copied verbatim")

	b, err = r.Resolve(matched("us-ca-san_francisco", "sfpd"), nil)
	require.NoError(t, err)
	assert.True(t, b.PhoneConfirmationRequired, "city policy applies when the section has none")
	assert.Equal(t, "Call 311 before mailing.", b.PhoneConfirmationMessage)

	b, err = r.Resolve(matched("us-ca-oakland", "oak"), nil)
	require.NoError(t, err)
	assert.False(t, b.PhoneConfirmationRequired)
}

func TestResolveErrors(t *testing.T) {
	r := NewResolver(fixtures())

	_, err := r.Resolve(matcher.Result{Reason: matcher.NoPatternMatched}, nil)
	assert.True(t, errors.Is(err, ErrNotMatched))

	_, err = r.Resolve(matched("us-zz-nowhere", "x"), nil)
	assert.True(t, errors.Is(err, ErrUnknownCity))

	_, err = r.ResolveSection("us-ca-oakland", "missing", nil)
	assert.True(t, errors.Is(err, ErrUnknownSection))
}

func TestResolveDoesNotMutateCity(t *testing.T) {
	cities := fixtures()
	before := cities["us-ca-san_francisco"].Clone()

	r := NewResolver(cities)
	d := city.Date{Year: 2024, Month: 6, Day: 1}
	_, err := r.Resolve(matched("us-ca-san_francisco", "sfpd"), &d)
	require.NoError(t, err)

	assert.Equal(t, before, cities["us-ca-san_francisco"])
}
