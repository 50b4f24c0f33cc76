package store

import (
	"strings"
	"time"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/city"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/index"
)

// Snapshot is one immutable generation of loaded cities and the pattern
// index built from them. A lookup that reads everything it needs from one
// snapshot never observes a half-applied reload.
type Snapshot struct {
	ID       string
	LoadedAt time.Time

	cities  map[string]*city.City
	order   []string
	byState map[string][]string
	index   *index.Index
	report  *LoadReport
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		cities:  map[string]*city.City{},
		byState: map[string][]string{},
		index:   &index.Index{},
		report:  &LoadReport{},
	}
}

// newSnapshot assembles a snapshot from cities sorted by ID.
func newSnapshot(id string, at time.Time, cities []*city.City, idx *index.Index, report *LoadReport) *Snapshot {
	s := &Snapshot{
		ID:       id,
		LoadedAt: at,
		cities:   make(map[string]*city.City, len(cities)),
		order:    make([]string, 0, len(cities)),
		byState:  make(map[string][]string),
		index:    idx,
		report:   report,
	}
	for _, c := range cities {
		s.cities[c.CityID] = c
		s.order = append(s.order, c.CityID)
		s.byState[c.State] = append(s.byState[c.State], c.CityID)
	}
	return s
}

// City returns the city with the given ID. The record is shared and must
// not be modified.
func (s *Snapshot) City(cityID string) (*city.City, bool) {
	c, ok := s.cities[cityID]
	return c, ok
}

// Cities returns every city in city_id order.
func (s *Snapshot) Cities() []*city.City {
	out := make([]*city.City, len(s.order))
	for i, id := range s.order {
		out[i] = s.cities[id]
	}
	return out
}

// CitiesByState returns the cities of one state (two-letter code, any case)
// in city_id order.
func (s *Snapshot) CitiesByState(state string) []*city.City {
	ids := s.byState[strings.ToUpper(strings.TrimSpace(state))]
	out := make([]*city.City, len(ids))
	for i, id := range ids {
		out[i] = s.cities[id]
	}
	return out
}

// Len returns the number of cities.
func (s *Snapshot) Len() int { return len(s.order) }

// Index returns the pattern index built for this snapshot.
func (s *Snapshot) Index() *index.Index { return s.index }

// CurrentIndex returns the index and this snapshot's ID.
func (s *Snapshot) CurrentIndex() (*index.Index, string) { return s.index, s.ID }

// Report returns the report of the load that built this snapshot.
func (s *Snapshot) Report() *LoadReport { return s.report }
