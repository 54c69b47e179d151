package geo

import "github.com/paulmach/orb"

// ToMultiPolygon normalizes an areal geometry to a MultiPolygon so a layer
// holds a single geometry type. Points and lines inside collections are
// dropped. ok is false when no polygon remains.
func ToMultiPolygon(g orb.Geometry) (orb.MultiPolygon, bool) {
	var out orb.MultiPolygon
	collectPolygons(g, &out)
	return out, len(out) > 0
}

func collectPolygons(g orb.Geometry, out *orb.MultiPolygon) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) > 0 {
			*out = append(*out, v)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			collectPolygons(p, out)
		}
	case orb.Collection:
		for _, child := range v {
			collectPolygons(child, out)
		}
	case orb.Bound:
		*out = append(*out, v.ToPolygon())
	}
}
