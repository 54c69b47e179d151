// Package geo wraps the GEOS operations the perimeter pipeline needs:
// equal-area simplification and repair at ingestion, and the symmetric
// difference and denoising behind daily change layers.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"
)

const (
	// SimplifyToleranceMeters is the topology-preserving simplification
	// tolerance applied to domestic perimeters.
	SimplifyToleranceMeters = 100.0
	// DenoiseDistanceMeters is the buffer and simplify distance used to
	// remove slivers from daily differences.
	DenoiseDistanceMeters = 100.0

	SquareMetersToAcres = 0.000247105
	HectaresToAcres     = 2.47105381

	quadSegs = 8
)

// Engine implements domain.Differ and the ingestion geometry steps on top
// of GEOS.
type Engine struct{}

// NewEngine returns a geometry engine.
func NewEngine() *Engine { return &Engine{} }

// Normalized is a perimeter after ingestion processing.
type Normalized struct {
	Geometry orb.Geometry
	// Acres is the area of the input geometry, rounded to whole acres.
	Acres float64
}

// SimplifyAndRepair measures, simplifies and repairs a WGS84 perimeter in an
// equal-area projection: acres from the projected area, a topology
// preserving simplify at SimplifyToleranceMeters, then a zero buffer.
func (e *Engine) SimplifyAndRepair(g orb.Geometry) (Normalized, error) {
	var out Normalized
	err := guard("simplify perimeter", func() error {
		ea, err := NewEqualAreaFor(g)
		if err != nil {
			return err
		}
		projected, err := ea.Project(g)
		if err != nil {
			return err
		}
		gg, err := toGEOS(projected)
		if err != nil {
			return err
		}
		out.Acres = math.Round(gg.Area() * SquareMetersToAcres)

		cleaned := gg.TopologyPreserveSimplify(SimplifyToleranceMeters).Buffer(0, quadSegs)
		back, err := fromGEOS(cleaned)
		if err != nil {
			return err
		}
		out.Geometry, err = ea.Unproject(back)
		return err
	})
	return out, err
}

// Repair fixes self-intersections with a zero-width buffer.
func (e *Engine) Repair(g orb.Geometry) (orb.Geometry, error) {
	var out orb.Geometry
	err := guard("repair perimeter", func() error {
		gg, err := toGEOS(g)
		if err != nil {
			return err
		}
		out, err = fromGEOS(gg.Buffer(0, quadSegs))
		return err
	})
	return out, err
}

// Acres returns the area of a WGS84 geometry in whole acres.
func (e *Engine) Acres(g orb.Geometry) (float64, error) {
	var acres float64
	err := guard("measure perimeter", func() error {
		ea, err := NewEqualAreaFor(g)
		if err != nil {
			return err
		}
		projected, err := ea.Project(g)
		if err != nil {
			return err
		}
		gg, err := toGEOS(projected)
		if err != nil {
			return err
		}
		acres = math.Round(gg.Area() * SquareMetersToAcres)
		return nil
	})
	return acres, err
}

// Merge unions several perimeters into one geometry.
func (e *Engine) Merge(geoms []orb.Geometry) (orb.Geometry, error) {
	if len(geoms) == 0 {
		return nil, fmt.Errorf("merge: no geometries")
	}
	var out orb.Geometry
	err := guard("merge perimeters", func() error {
		acc, err := toGEOS(geoms[0])
		if err != nil {
			return err
		}
		for _, g := range geoms[1:] {
			next, err := toGEOS(g)
			if err != nil {
				return err
			}
			acc = acc.Union(next)
		}
		out, err = fromGEOS(acc)
		return err
	})
	return out, err
}

// SymmetricDifference returns the area covered by exactly one of prev and
// cur. changed is false when that area is zero in the equal-area projection.
func (e *Engine) SymmetricDifference(prev, cur orb.Geometry) (orb.Geometry, bool, error) {
	var (
		out     orb.Geometry
		changed bool
	)
	err := guard("symmetric difference", func() error {
		ea, err := NewEqualAreaFor(prev, cur)
		if err != nil {
			return err
		}
		a, err := projectToGEOS(ea, prev)
		if err != nil {
			return err
		}
		b, err := projectToGEOS(ea, cur)
		if err != nil {
			return err
		}
		diff := a.SymDifference(b)
		changed = !diff.IsEmpty() && diff.Area() != 0
		if !changed {
			return nil
		}
		out, err = unprojectFromGEOS(ea, diff)
		return err
	})
	return out, changed, err
}

// Denoise grows then shrinks the difference by DenoiseDistanceMeters and
// simplifies it by the same distance, all in metres. empty is true when
// nothing survives.
func (e *Engine) Denoise(g orb.Geometry) (orb.Geometry, bool, error) {
	var (
		out   orb.Geometry
		empty bool
	)
	err := guard("denoise difference", func() error {
		ea, err := NewEqualAreaFor(g)
		if err != nil {
			return err
		}
		gg, err := projectToGEOS(ea, g)
		if err != nil {
			return err
		}
		smoothed := gg.
			Buffer(DenoiseDistanceMeters, quadSegs).
			Buffer(-DenoiseDistanceMeters, quadSegs).
			TopologyPreserveSimplify(DenoiseDistanceMeters)
		if smoothed.IsEmpty() || smoothed.Area() == 0 {
			empty = true
			return nil
		}
		out, err = unprojectFromGEOS(ea, smoothed)
		return err
	})
	return out, empty, err
}

func projectToGEOS(ea *EqualArea, g orb.Geometry) (*geos.Geom, error) {
	projected, err := ea.Project(g)
	if err != nil {
		return nil, err
	}
	return toGEOS(projected)
}

func unprojectFromGEOS(ea *EqualArea, g *geos.Geom) (orb.Geometry, error) {
	back, err := fromGEOS(g)
	if err != nil {
		return nil, err
	}
	return ea.Unproject(back)
}
