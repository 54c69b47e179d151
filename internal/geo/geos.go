package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// toGEOS converts an orb geometry to a GEOS geometry through WKB.
func toGEOS(g orb.Geometry) (*geos.Geom, error) {
	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}
	out, err := geos.NewGeomFromWKB(data)
	if err != nil {
		return nil, fmt.Errorf("decode wkb into geos: %w", err)
	}
	return out, nil
}

// fromGEOS converts a GEOS geometry back to orb.
func fromGEOS(g *geos.Geom) (orb.Geometry, error) {
	out, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, fmt.Errorf("decode wkb from geos: %w", err)
	}
	return out, nil
}

// guard turns a GEOS panic (topology exceptions surface that way) into an error.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: geos: %v", op, r)
		}
	}()
	return fn()
}
