package wfigs

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/workspace"
)

type fakeFetcher struct {
	body []byte
	err  error
	urls []string
}

func (f *fakeFetcher) GetBytes(_ context.Context, u string) ([]byte, error) {
	f.urls = append(f.urls, u)
	return f.body, f.err
}

func marshallFire() domain.Disaster {
	return domain.Disaster{
		ID:        "2021-marshall-fire",
		DateStart: "2021-12-30",
		DateEnd:   "2022-01-02",
		BBox:      &orb.Bound{Min: orb.Point{-105.35, 39.85}, Max: orb.Point{-105.05, 40.05}},
	}
}

func feature(incident string, at time.Time) *geojson.Feature {
	f := geojson.NewFeature(orb.Polygon{{{-105.2, 39.9}, {-105.1, 39.9}, {-105.1, 40}, {-105.2, 39.9}}})
	if incident != "" {
		f.Properties[propIncidentName] = incident
	}
	if !at.IsZero() {
		f.Properties[propPolygonTime] = float64(at.UnixMilli())
	}
	return f
}

func collection(t *testing.T, features ...*geojson.Feature) []byte {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	return data
}

func TestQueryURL(t *testing.T) {
	raw, err := QueryURL("https://example.com/FeatureServer/0/query", marshallFire())
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "1=1", q.Get("where"))
	assert.Equal(t, "*", q.Get("outFields"))
	assert.Equal(t, "-105.35,39.85,-105.05,40.05", q.Get("geometry"))
	assert.Equal(t, "esriGeometryEnvelope", q.Get("geometryType"))
	assert.Equal(t, "4326", q.Get("inSR"))
	assert.Equal(t, "esriSpatialRelIntersects", q.Get("spatialRel"))
	assert.Equal(t, "4326", q.Get("outSR"))
	assert.Equal(t, "geojson", q.Get("f"))

	d := marshallFire()
	d.BBox = nil
	_, err = QueryURL("https://example.com", d)
	require.ErrorIs(t, err, ErrNoBoundingBox)
}

func TestDownloader_Download(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2021, 12, d, h, 0, 0, 0, time.UTC) }
	fetcher := &fakeFetcher{body: collection(t,
		feature("Marshall", day(30, 20)),
		feature("Marshall", day(30, 23)),
		feature("Marshall", day(31, 9)),
		feature("Middle Fork", day(31, 9)),
		feature("Marshall", day(20, 9)), // before the window
		feature("", day(31, 10)),
		feature("Undated", time.Time{}),
	)}
	layout := workspace.New(t.TempDir())
	dl := NewDownloader(fetcher, "https://example.com/query", layout, slog.Default())
	assert.Equal(t, domain.SourceWFIGS, dl.Name())

	paths, err := dl.Download(context.Background(), marshallFire())
	require.NoError(t, err)
	require.Len(t, fetcher.urls, 1)

	dir := layout.PerimeterInputDir("2021-marshall-fire")
	assert.Equal(t, []string{
		filepath.Join(dir, "Marshall", "20211230.geojson"),
		filepath.Join(dir, "Marshall", "20211231.geojson"),
		filepath.Join(dir, "Middle Fork", "20211231.geojson"),
		filepath.Join(dir, "N-A", "20211231.geojson"),
	}, paths)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2, "same-day perimeters share one file")
}

func TestDownloader_FetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("circuit breaker open")}
	dl := NewDownloader(fetcher, "https://example.com/query", workspace.New(t.TempDir()), slog.Default())
	_, err := dl.Download(context.Background(), marshallFire())
	require.Error(t, err)
}

func TestDownloader_InvalidWindow(t *testing.T) {
	fetcher := &fakeFetcher{body: collection(t, feature("Marshall", time.Date(2021, 12, 30, 0, 0, 0, 0, time.UTC)))}
	dl := NewDownloader(fetcher, "https://example.com/query", workspace.New(t.TempDir()), slog.Default())
	d := marshallFire()
	d.DateStart = ""
	_, err := dl.Download(context.Background(), d)
	require.ErrorIs(t, err, domain.ErrInvalidDisaster)
}

func TestFolderName(t *testing.T) {
	tests := []struct {
		incident string
		want     string
	}{
		{domain.DefaultIncidentName, "N-A"},
		{"Marshall", "Marshall"},
		{`a/b\c`, "a-b-c"},
		{"..", "N-A"},
		{".", "N-A"},
		{" .. ", "N-A"},
		{"", "N-A"},
		{"../etc", "..-etc"},
		{"St. Mary", "St. Mary"},
	}
	for _, tt := range tests {
		t.Run(tt.incident, func(t *testing.T) {
			assert.Equal(t, tt.want, folderName(tt.incident))
		})
	}
}
