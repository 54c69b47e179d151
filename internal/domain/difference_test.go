package domain

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDiffer treats geometries as opaque values: equal geometries have no
// difference, otherwise the difference is the current perimeter. Geometries
// listed in noise vanish when denoised.
type fakeDiffer struct {
	noise  map[float64]bool
	merged int
	err    error
}

func (f *fakeDiffer) Merge(geoms []orb.Geometry) (orb.Geometry, error) {
	f.merged++
	mp := orb.MultiPolygon{}
	for _, g := range geoms {
		mp = append(mp, g.(orb.Polygon))
	}
	return mp, nil
}

func (f *fakeDiffer) SymmetricDifference(prev, cur orb.Geometry) (orb.Geometry, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if orb.Equal(prev, cur) {
		return orb.Polygon{}, false, nil
	}
	return cur, true, nil
}

func (f *fakeDiffer) Denoise(g orb.Geometry) (orb.Geometry, bool, error) {
	if p, ok := g.(orb.Polygon); ok && f.noise[p.Bound().Max[0]] {
		return orb.Polygon{}, true, nil
	}
	return g, false, nil
}

func TestComputeDifferences_DayZeroIsFullPerimeter(t *testing.T) {
	seq := []Observation{observed("Alpha", "20230801", 3), observed("Alpha", "20230802", 5)}

	recs, err := ComputeDifferences(seq, &fakeDiffer{})
	require.NoError(t, err)

	require.Len(t, recs, 2)
	assert.Equal(t, seq[0].Geometry, recs[0].Geometry)
	assert.Equal(t, seq[0].DiscoveryTime, recs[0].DiscoveryTime)
	assert.False(t, recs[0].Repeated)
	assert.Equal(t, seq[1].Geometry, recs[1].Geometry)
}

func TestComputeDifferences_StaleDayRepeatsPreviousRecord(t *testing.T) {
	seq := FillGaps([]Observation{
		observed("Alpha", "20230801", 1),
		observed("Alpha", "20230802", 2),
	}, Window{Start: MustParseDate("20230801"), End: MustParseDate("20230804")})

	recs, err := ComputeDifferences(seq, &fakeDiffer{})
	require.NoError(t, err)

	require.Len(t, recs, 4)
	assert.Equal(t, []string{"20230801", "20230802", "20230803", "20230804"}, recordDays(recs))
	assert.Equal(t, recs[1].Geometry, recs[2].Geometry)
	assert.Equal(t, recs[1].Geometry, recs[3].Geometry)
	assert.True(t, recs[2].Repeated)
	assert.True(t, recs[3].Repeated)
	assert.NotEqual(t, orb.Polygon{}, recs[2].Geometry)
}

func TestComputeDifferences_NoiseOnlyChangeEmitsEmptyRecord(t *testing.T) {
	seq := []Observation{
		observed("Alpha", "20230801", 1),
		observed("Alpha", "20230802", 2),
	}
	recs, err := ComputeDifferences(seq, &fakeDiffer{noise: map[float64]bool{2: true}})
	require.NoError(t, err)

	require.Len(t, recs, 2)
	assert.False(t, recs[1].Repeated)
	assert.Equal(t, orb.MultiPolygon{}, recs[1].Geometry)
	assert.NotEqual(t, recs[0].Geometry, recs[1].Geometry)
	assert.Equal(t, "20230802", recs[1].Date.String())
}

func TestComputeDifferences_RepeatOnlyWhenUnchanged(t *testing.T) {
	seq := []Observation{
		observed("Alpha", "20230801", 1),
		observed("Alpha", "20230802", 2),
		observed("Alpha", "20230803", 2),
		observed("Alpha", "20230804", 3),
	}
	recs, err := ComputeDifferences(seq, &fakeDiffer{noise: map[float64]bool{2: true}})
	require.NoError(t, err)

	require.Len(t, recs, 4)
	assert.False(t, recs[1].Repeated)
	assert.True(t, recs[2].Repeated, "identical perimeters repeat the previous record")
	assert.Equal(t, recs[1].Geometry, recs[2].Geometry)
	assert.False(t, recs[3].Repeated)
	assert.Equal(t, seq[3].Geometry, recs[3].Geometry)
}

func TestComputeDifferences_MergesSameDayObservations(t *testing.T) {
	seq := []Observation{
		observed("EMSR686", "20230801", 1),
		observed("EMSR686", "20230801", 2),
		observed("EMSR686", "20230802", 2),
	}
	differ := &fakeDiffer{}

	recs, err := ComputeDifferences(seq, differ)
	require.NoError(t, err)

	require.Len(t, recs, 2)
	assert.Equal(t, 1, differ.merged)
	assert.IsType(t, orb.MultiPolygon{}, recs[0].Geometry)
}

func TestComputeDifferences_PropagatesGeometryErrors(t *testing.T) {
	seq := []Observation{observed("Alpha", "20230801", 1), observed("Alpha", "20230802", 2)}

	_, err := ComputeDifferences(seq, &fakeDiffer{err: errors.New("topology exception")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Alpha")
	assert.Contains(t, err.Error(), "topology exception")
}

func TestComputeAllDifferences_PerIncident(t *testing.T) {
	seq := []Observation{
		observed("Beta", "20230802", 1),
		observed("Alpha", "20230801", 1),
		observed("Alpha", "20230802", 1),
	}
	recs, err := ComputeAllDifferences(seq, &fakeDiffer{})
	require.NoError(t, err)

	require.Len(t, recs, 3)
	assert.Equal(t, "Alpha", recs[0].Incident)
	assert.True(t, recs[1].Repeated)
	assert.Equal(t, "Beta", recs[2].Incident)
	assert.False(t, recs[2].Repeated)
}

func recordDays(recs []DifferenceRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Date.String()
	}
	return out
}
