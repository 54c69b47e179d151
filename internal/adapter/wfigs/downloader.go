// Package wfigs downloads domestic fire perimeters from the WFIGS
// Interagency Perimeters feature service.
package wfigs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/adapter/fetch"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/workspace"
)

const (
	propIncidentName = "poly_IncidentName"
	propPolygonTime  = "poly_PolygonDateTime"
)

// ErrNoBoundingBox is returned for a disaster without a bounding box; the
// feature service query needs an envelope.
var ErrNoBoundingBox = errors.New("disaster has no bounding box")

// Fetcher fetches a URL's body.
type Fetcher interface {
	GetBytes(ctx context.Context, url string) ([]byte, error)
}

// Downloader queries the feature service for the perimeters intersecting a
// disaster's bounding box and stages one file per incident per day:
// <perimeter input>/<incident>/<YYYYMMDD>.geojson.
type Downloader struct {
	fetcher Fetcher
	baseURL string
	layout  workspace.Layout
	logger  *slog.Logger
}

// NewDownloader creates a Downloader for the query endpoint at baseURL.
func NewDownloader(fetcher Fetcher, baseURL string, layout workspace.Layout, logger *slog.Logger) *Downloader {
	return &Downloader{fetcher: fetcher, baseURL: baseURL, layout: layout, logger: logger}
}

// Name implements perimeter.Downloader.
func (d *Downloader) Name() domain.PerimeterSource { return domain.SourceWFIGS }

// Download implements perimeter.Downloader.
func (d *Downloader) Download(ctx context.Context, dis domain.Disaster) ([]string, error) {
	if dis.BBox == nil {
		return nil, fmt.Errorf("%s: %w", dis.ID, ErrNoBoundingBox)
	}
	queryURL, err := QueryURL(d.baseURL, dis)
	if err != nil {
		return nil, err
	}
	d.logger.Info("downloading perimeters", "disaster", dis.ID, "url", queryURL)

	data, err := d.fetcher.GetBytes(ctx, queryURL)
	if err != nil {
		return nil, fmt.Errorf("query perimeters: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode perimeters: %w", err)
	}

	dated := make([]*geojson.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if _, ok := polygonTime(f); ok {
			dated = append(dated, f)
		}
	}
	if skipped := len(fc.Features) - len(dated); skipped > 0 {
		d.logger.Warn("perimeters without polygon time skipped", "disaster", dis.ID, "count", skipped)
	}
	inWindow, err := domain.FilterByDate(dated, dis, func(f *geojson.Feature) time.Time {
		t, _ := polygonTime(f)
		return t
	})
	if err != nil {
		return nil, err
	}

	groups := SplitByIncidentDay(inWindow)
	dir := d.layout.PerimeterInputDir(dis.ID)
	paths := make([]string, 0, len(groups))
	for _, key := range sortedKeys(groups) {
		path := filepath.Join(dir, folderName(key.Incident), key.Date.String()+".geojson")
		if err := writeCollection(path, groups[key]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	d.logger.Info("perimeters staged",
		"disaster", dis.ID,
		"features", len(fc.Features),
		"in_window", len(inWindow),
		"files", len(paths),
	)
	return paths, nil
}

// QueryURL builds the envelope query for a disaster's bounding box.
func QueryURL(base string, dis domain.Disaster) (string, error) {
	if dis.BBox == nil {
		return "", fmt.Errorf("%s: %w", dis.ID, ErrNoBoundingBox)
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse WFIGS url: %w", err)
	}
	b := dis.BBox
	q := u.Query()
	q.Set("where", "1=1")
	q.Set("outFields", "*")
	q.Set("geometry", strings.Join([]string{
		formatCoord(b.Min[0]), formatCoord(b.Min[1]), formatCoord(b.Max[0]), formatCoord(b.Max[1]),
	}, ","))
	q.Set("geometryType", "esriGeometryEnvelope")
	q.Set("inSR", "4326")
	q.Set("spatialRel", "esriSpatialRelIntersects")
	q.Set("outSR", "4326")
	q.Set("f", "geojson")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SplitByIncidentDay groups features by incident and by the UTC day of
// their polygon time.
func SplitByIncidentDay(features []*geojson.Feature) map[domain.Key][]*geojson.Feature {
	groups := make(map[domain.Key][]*geojson.Feature)
	for _, f := range features {
		t, ok := polygonTime(f)
		if !ok {
			continue
		}
		key := domain.Key{Incident: incidentName(f), Date: domain.DateOf(t.UTC())}
		groups[key] = append(groups[key], f)
	}
	return groups
}

func polygonTime(f *geojson.Feature) (time.Time, bool) {
	ms, ok := f.Properties[propPolygonTime].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

func incidentName(f *geojson.Feature) string {
	name := stringProp(f, propIncidentName)
	if name == "" {
		return domain.DefaultIncidentName
	}
	return name
}

// folderName makes an incident name safe to use as one path element. Names
// that would resolve to the input folder or its parent use the placeholder
// folder of unnamed incidents.
func folderName(incident string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '-'
		}
		return r
	}, incident)
	switch strings.TrimSpace(name) {
	case "", ".", "..":
		return folderName(domain.DefaultIncidentName)
	}
	return name
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sortedKeys(groups map[domain.Key][]*geojson.Feature) []domain.Key {
	keys := make([]domain.Key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b domain.Key) int {
		if a.Incident != b.Incident {
			return strings.Compare(a.Incident, b.Incident)
		}
		return a.Date.Compare(b.Date)
	})
	return keys
}

func writeCollection(path string, features []*geojson.Feature) error {
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
