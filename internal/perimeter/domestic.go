package perimeter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/geo"
)

// Domestic perimeter property names, as served by the WFIGS feature service.
const (
	propIncidentName  = "poly_IncidentName"
	propGISAcres      = "poly_GISAcres"
	propDiscoveryTime = "irwin_FireDiscoveryDateTime"
)

// GeometryProcessor performs the ingestion geometry steps.
type GeometryProcessor interface {
	SimplifyAndRepair(g orb.Geometry) (geo.Normalized, error)
	Repair(g orb.Geometry) (orb.Geometry, error)
	Acres(g orb.Geometry) (float64, error)
	Merge(geoms []orb.Geometry) (orb.Geometry, error)
}

// DomesticSource reads per-day WFIGS GeoJSON files. Each file is named after
// its observation day (YYYYMMDD.geojson) and may sit in a per-incident
// subfolder.
type DomesticSource struct {
	geometry GeometryProcessor
	logger   *slog.Logger
}

// NewDomesticSource creates a DomesticSource.
func NewDomesticSource(geometry GeometryProcessor, logger *slog.Logger) *DomesticSource {
	return &DomesticSource{geometry: geometry, logger: logger}
}

// Name implements Source.
func (s *DomesticSource) Name() domain.PerimeterSource { return domain.SourceWFIGS }

// Read implements Source.
func (s *DomesticSource) Read(ctx context.Context, in Input) ([]domain.Observation, []FileResult, error) {
	paths, err := findFiles(in.Dir, func(name string) bool {
		ext := strings.ToLower(filepath.Ext(name))
		return ext == ".geojson" || ext == ".json"
	})
	if err != nil {
		return nil, nil, err
	}

	var (
		obs     []domain.Observation
		results = make([]FileResult, 0, len(paths))
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, results, err
		}
		fileObs, err := s.readFile(path)
		results = append(results, FileResult{Path: path, Observations: len(fileObs), Err: err})
		if err != nil {
			continue
		}
		s.logger.Debug("perimeter file read", "path", path, "observations", len(fileObs))
		obs = append(obs, fileObs...)
	}
	return obs, results, nil
}

func (s *DomesticSource) readFile(path string) ([]domain.Observation, error) {
	day, err := dateFromFileName(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	obs := make([]domain.Observation, 0, len(fc.Features))
	for i, f := range fc.Features {
		if !isAreal(f.Geometry) {
			s.logger.Debug("non-polygon feature ignored", "path", path, "feature", i)
			continue
		}
		norm, err := s.geometry.SimplifyAndRepair(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d of %s: %w", i, path, err)
		}
		acres := norm.Acres
		if v, ok := f.Properties[propGISAcres].(float64); ok {
			acres = v
		}
		obs = append(obs, domain.Observation{
			Incident:      incidentName(f.Properties),
			Date:          day,
			Geometry:      norm.Geometry,
			Acres:         acres,
			DiscoveryTime: discoveryTime(f.Properties),
			SourceFile:    path,
		})
	}
	return obs, nil
}

func incidentName(props geojson.Properties) string {
	name := strings.TrimSpace(props.MustString(propIncidentName, ""))
	if name == "" {
		return domain.DefaultIncidentName
	}
	return name
}

// discoveryTime reads the epoch-millisecond discovery timestamp.
func discoveryTime(props geojson.Properties) *time.Time {
	ms, ok := props[propDiscoveryTime].(float64)
	if !ok {
		return nil
	}
	t := time.UnixMilli(int64(ms)).UTC()
	return &t
}

func dateFromFileName(path string) (domain.Date, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	day, err := domain.ParseDate(stem)
	if err != nil {
		return domain.Date{}, fmt.Errorf("file name %s is not a date: %w", base, err)
	}
	return day, nil
}

func isAreal(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	default:
		return false
	}
}

// findFiles lists the files below dir accepted by match, sorted. A missing
// directory or one without matching files yields ErrNoInput.
func findFiles(dir string, match func(name string) bool) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && match(entry.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrNoInput, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInput, dir)
	}
	slices.Sort(paths)
	return paths, nil
}
