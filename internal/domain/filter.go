package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// IntersectsBound reports whether b overlaps the disaster's bounding box,
// edges included.
func (d Disaster) IntersectsBound(b orb.Bound) bool {
	if d.BBox == nil {
		return true
	}
	return d.BBox.Intersects(b)
}

// FilterByBBox keeps the rows whose bounds overlap the disaster's box. Rows
// for which boundOf reports no bounds are dropped.
func FilterByBBox[T any](rows []T, d Disaster, boundOf func(T) (orb.Bound, bool)) []T {
	if d.BBox == nil {
		return rows
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if b, ok := boundOf(r); ok && d.IntersectsBound(b) {
			out = append(out, r)
		}
	}
	return out
}

// FilterByDate keeps the rows whose calendar day falls in the disaster's
// window. Ongoing disasters keep everything from the start day onwards.
func FilterByDate[T any](rows []T, d Disaster, timeOf func(T) time.Time) ([]T, error) {
	start, end, err := d.Window()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		day := DateOf(timeOf(r).UTC())
		if day.Before(start) {
			continue
		}
		if !d.IsOngoing && day.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
