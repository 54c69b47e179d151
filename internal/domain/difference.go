package domain

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// DifferenceRecord is the change in an incident's perimeter on one day.
type DifferenceRecord struct {
	Incident      string
	Date          Date
	DiscoveryTime *time.Time
	Geometry      orb.Geometry

	// Repeated marks a day with no change that repeats the previous record.
	Repeated bool
}

// Differ performs the geometry operations behind difference computation.
type Differ interface {
	// Merge unions the perimeters observed for one day into one geometry.
	Merge(geoms []orb.Geometry) (orb.Geometry, error)
	// SymmetricDifference returns the area present in exactly one of prev and
	// cur. changed is false when that area is zero.
	SymmetricDifference(prev, cur orb.Geometry) (diff orb.Geometry, changed bool, err error)
	// Denoise removes slivers from a raw difference. empty reports that
	// nothing survived.
	Denoise(g orb.Geometry) (out orb.Geometry, empty bool, err error)
}

// ComputeDifferences turns one incident's Daily Perimeter Sequence into
// Difference Records, one per day. The first day's record is its full
// perimeter. Later days hold the denoised symmetric difference with the day
// before; a day whose perimeter did not change repeats the previous record
// with its own date. A change that denoising erases yields an empty geometry.
func ComputeDifferences(seq []Observation, differ Differ) ([]DifferenceRecord, error) {
	days, perDay := splitDays(seq)
	records := make([]DifferenceRecord, 0, len(days))

	var prevPerimeter orb.Geometry
	for i, day := range days {
		obs := perDay[day]
		cur, err := mergeDay(obs, differ)
		if err != nil {
			return nil, fmt.Errorf("merge %s %s: %w", obs[0].Incident, day, err)
		}
		rec := DifferenceRecord{
			Incident:      obs[0].Incident,
			Date:          day,
			DiscoveryTime: obs[0].DiscoveryTime,
		}

		if i == 0 {
			rec.Geometry = cur
			records = append(records, rec)
			prevPerimeter = cur
			continue
		}

		diff, changed, err := differ.SymmetricDifference(prevPerimeter, cur)
		if err != nil {
			return nil, fmt.Errorf("difference %s %s: %w", rec.Incident, day, err)
		}
		prevPerimeter = cur

		if !changed {
			rec.Geometry = records[len(records)-1].Geometry
			rec.Repeated = true
			records = append(records, rec)
			continue
		}

		denoised, empty, err := differ.Denoise(diff)
		if err != nil {
			return nil, fmt.Errorf("denoise %s %s: %w", rec.Incident, day, err)
		}
		if empty {
			denoised = orb.MultiPolygon{}
		}
		rec.Geometry = denoised
		records = append(records, rec)
	}
	return records, nil
}

// ComputeAllDifferences runs ComputeDifferences for every incident in a
// combined perimeter sequence.
func ComputeAllDifferences(seq []Observation, differ Differ) ([]DifferenceRecord, error) {
	names, groups := GroupByIncident(seq)
	var out []DifferenceRecord
	for _, name := range names {
		recs, err := ComputeDifferences(groups[name], differ)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func splitDays(seq []Observation) ([]Date, map[Date][]Observation) {
	perDay := make(map[Date][]Observation)
	var days []Date
	for _, o := range seq {
		if _, ok := perDay[o.Date]; !ok {
			days = append(days, o.Date)
		}
		perDay[o.Date] = append(perDay[o.Date], o)
	}
	SortDates(days)
	return days, perDay
}

func mergeDay(obs []Observation, differ Differ) (orb.Geometry, error) {
	if len(obs) == 1 {
		return obs[0].Geometry, nil
	}
	geoms := make([]orb.Geometry, len(obs))
	for i, o := range obs {
		geoms[i] = o.Geometry
	}
	return differ.Merge(geoms)
}
