package geo

import (
	"fmt"
	"math"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const wgs84Def = "+proj=longlat +datum=WGS84 +no_defs"

// EqualArea projects WGS84 geometries into an Albers equal-area projection
// centred on a point, so areas come out in square metres and buffer
// distances are metres.
type EqualArea struct {
	forward proj.Transformer
	inverse proj.Transformer
}

// NewEqualArea builds a projection centred on center (lon, lat).
func NewEqualArea(center orb.Point) (*EqualArea, error) {
	lat1, lat2 := standardParallels(center[1])
	def := fmt.Sprintf(
		"+proj=aea +lat_1=%.4f +lat_2=%.4f +lat_0=%.4f +lon_0=%.4f +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs",
		lat1, lat2, clampLat(center[1]), center[0],
	)

	src, err := proj.Parse(wgs84Def)
	if err != nil {
		return nil, fmt.Errorf("parse wgs84: %w", err)
	}
	dst, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse equal-area projection: %w", err)
	}
	forward, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("equal-area forward transform: %w", err)
	}
	inverse, err := dst.NewTransform(src)
	if err != nil {
		return nil, fmt.Errorf("equal-area inverse transform: %w", err)
	}
	return &EqualArea{forward: forward, inverse: inverse}, nil
}

// NewEqualAreaFor builds a projection centred on the bounds of the given
// geometries.
func NewEqualAreaFor(geoms ...orb.Geometry) (*EqualArea, error) {
	var (
		b    orb.Bound
		seen bool
	)
	for _, g := range geoms {
		if g == nil {
			continue
		}
		if !seen {
			b, seen = g.Bound(), true
			continue
		}
		b = b.Union(g.Bound())
	}
	return NewEqualArea(b.Center())
}

// Project converts a WGS84 geometry to projected metres. The input is not
// modified.
func (e *EqualArea) Project(g orb.Geometry) (orb.Geometry, error) {
	return transform(g, e.forward)
}

// Unproject converts a projected geometry back to WGS84.
func (e *EqualArea) Unproject(g orb.Geometry) (orb.Geometry, error) {
	return transform(g, e.inverse)
}

func transform(g orb.Geometry, t proj.Transformer) (orb.Geometry, error) {
	var firstErr error
	out := project.Geometry(orb.Clone(g), func(p orb.Point) orb.Point {
		x, y, err := t(p[0], p[1])
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return orb.Point{x, y}
	})
	if firstErr != nil {
		return nil, fmt.Errorf("reproject: %w", firstErr)
	}
	return out, nil
}

// standardParallels places both parallels on the same side of the equator
// as lat; parallels symmetric about the equator make the cone degenerate.
func standardParallels(lat float64) (float64, float64) {
	lat = clampLat(lat)
	sign := 1.0
	if lat < 0 {
		sign = -1.0
	}
	return lat + sign*0.5, lat + sign*1.5
}

func clampLat(lat float64) float64 {
	return math.Max(-80, math.Min(80, lat))
}
