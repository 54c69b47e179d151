package domain

import (
	"cmp"
	"slices"
	"time"

	"github.com/paulmach/orb"
)

// DefaultIncidentName is used for older domestic data without an incident name.
const DefaultIncidentName = "N/A"

// Observation is one candidate perimeter for one incident on one day.
type Observation struct {
	Incident string
	Date     Date

	// Geometry is a Polygon or MultiPolygon in WGS84, repaired at ingestion.
	Geometry orb.Geometry
	Acres    float64

	// DiscoveryTime is nil when the source has no discovery timestamp.
	DiscoveryTime *time.Time
	Product       Product
	SourceFile    string

	// Filled marks a carried-forward copy of an earlier observation.
	Filled bool

	// LatestPerimeterDate is the last day the incident was really observed.
	LatestPerimeterDate Date
}

// Key identifies the incident and day an observation belongs to.
type Key struct {
	Incident string
	Date     Date
}

// Key returns the observation's (incident, day) key.
func (o Observation) Key() Key {
	return Key{Incident: o.Incident, Date: o.Date}
}

// GroupByIncident splits observations by incident, each group sorted by date.
// Incident names come back in sorted order.
func GroupByIncident(obs []Observation) ([]string, map[string][]Observation) {
	groups := make(map[string][]Observation)
	for _, o := range obs {
		groups[o.Incident] = append(groups[o.Incident], o)
	}
	names := make([]string, 0, len(groups))
	for name, g := range groups {
		SortByDate(g)
		names = append(names, name)
	}
	slices.Sort(names)
	return names, groups
}

// SortByDate orders observations by day, keeping the input order within a day.
func SortByDate(obs []Observation) {
	slices.SortStableFunc(obs, func(a, b Observation) int {
		return a.Date.Compare(b.Date)
	})
}

// DateBounds returns the earliest and latest observed day. ok is false for an
// empty slice.
func DateBounds(obs []Observation) (first, last Date, ok bool) {
	if len(obs) == 0 {
		return Date{}, Date{}, false
	}
	first, last = obs[0].Date, obs[0].Date
	for _, o := range obs[1:] {
		if o.Date.Before(first) {
			first = o.Date
		}
		if o.Date.After(last) {
			last = o.Date
		}
	}
	return first, last, true
}

// compareKeys orders keys by incident, then day.
func compareKeys(a, b Key) int {
	if c := cmp.Compare(a.Incident, b.Incident); c != 0 {
		return c
	}
	return a.Date.Compare(b.Date)
}
