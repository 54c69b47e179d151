package perimeter_test

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/LindsayBradford/go-dbf/godbf"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"
)

// square returns a lon/lat square with its south-west corner at (x, y).
func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

// marshalFeatures encodes one feature per polygon, all sharing props.
func marshalFeatures(t *testing.T, props map[string]any, polys ...orb.Polygon) []byte {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for _, p := range polys {
		f := geojson.NewFeature(p)
		for k, v := range props {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	return data
}

// writeDomesticFile writes <dir>/<incident>/<day>.geojson.
func writeDomesticFile(t *testing.T, dir, incident, day string, props map[string]any, polys ...orb.Polygon) string {
	t.Helper()
	path := filepath.Join(dir, incident, day+".geojson")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, marshalFeatures(t, props, polys...), 0o600))
	return path
}

// productZip builds an inner product archive holding an observed event
// layer and a source table whose post-event row carries srcDate.
func productZip(t *testing.T, prefix, srcDate string, props map[string]any, polys ...orb.Polygon) []byte {
	t.Helper()
	return zipOf(t, map[string][]byte{
		prefix + "_observedEventA_v1.json": marshalFeatures(t, props, polys...),
		prefix + "_source_v1.dbf":          sourceTable(t, "Pre-event", "01/07/2023", "Post-event", srcDate),
		prefix + "_hydrographyA_v1.json":   []byte(`{"type":"FeatureCollection","features":[]}`),
	})
}

// sourceTable encodes an eventphase/src_date table; pairs alternate phase
// and date.
func sourceTable(t *testing.T, pairs ...string) []byte {
	t.Helper()
	table := godbf.New("UTF8")
	require.NoError(t, table.AddTextField("eventphase", 16))
	require.NoError(t, table.AddTextField("src_date", 10))
	for i := 0; i+1 < len(pairs); i += 2 {
		row, err := table.AddNewRecord()
		require.NoError(t, err)
		require.NoError(t, table.SetFieldValueByName(row, "eventphase", pairs[i]))
		require.NoError(t, table.SetFieldValueByName(row, "src_date", pairs[i+1]))
	}
	path := filepath.Join(t.TempDir(), "source.dbf")
	require.NoError(t, godbf.SaveToFile(table, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// writeActivation writes <dir>/<code>_products.zip holding the given
// product archives.
func writeActivation(t *testing.T, dir, code string, products map[string][]byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, code+"_products.zip")
	require.NoError(t, os.WriteFile(path, zipOf(t, products), 0o600))
	return path
}

func zipOf(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
