// Package geojsonfile writes the processed perimeter layers the front-end
// reads: the daily perimeter sequence, the daily difference layer and a CSV
// summary.
package geojsonfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/geo"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/workspace"
)

// Output file names.
const (
	PerimetersFile  = "perimeters.geojson"
	DifferencesFile = "perimeters-difference.geojson"
	SummaryFile     = "perimeters-summary.csv"
)

// Feature property names.
const (
	PropIncidentName  = "poly_IncidentName"
	PropDate          = "YYYYMMDD"
	PropAcres         = "acres"
	PropDiscoveryTime = "irwin_FireDiscoveryDateTime"
	PropLatestDate    = "latestPerimDate"
	PropFilled        = "filled"
	PropRepeated      = "repeated"
)

// Writer writes a disaster's layers below its perimeter output folder.
// It implements perimeter.Sink.
type Writer struct {
	layout workspace.Layout
	logger *slog.Logger
}

// NewWriter creates a Writer.
func NewWriter(layout workspace.Layout, logger *slog.Logger) *Writer {
	return &Writer{layout: layout, logger: logger}
}

// Write replaces the disaster's output layers and returns their paths.
func (w *Writer) Write(ctx context.Context, d domain.Disaster, perimeters []domain.Observation, diffs []domain.DifferenceRecord) ([]string, error) {
	dir := w.layout.PerimeterOutputDir(d.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	perimPath := filepath.Join(dir, PerimetersFile)
	if err := writeCollection(perimPath, PerimeterFeatures(perimeters)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	diffPath := filepath.Join(dir, DifferencesFile)
	if err := writeCollection(diffPath, DifferenceFeatures(diffs)); err != nil {
		return nil, err
	}
	summaryPath := filepath.Join(dir, SummaryFile)
	if err := writeSummary(summaryPath, perimeters); err != nil {
		return nil, err
	}

	w.logger.Info("perimeter layers written",
		"disaster", d.ID,
		"dir", dir,
		"perimeters", len(perimeters),
		"differences", len(diffs),
	)
	return []string{perimPath, diffPath, summaryPath}, nil
}

// PerimeterFeatures encodes the daily perimeter sequence, one feature per
// observation.
func PerimeterFeatures(perimeters []domain.Observation) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, o := range perimeters {
		f := geojson.NewFeature(multiPolygon(o.Geometry))
		f.Properties[PropIncidentName] = o.Incident
		f.Properties[PropDate] = o.Date.String()
		f.Properties[PropAcres] = o.Acres
		f.Properties[PropDiscoveryTime] = formatTime(o.DiscoveryTime)
		f.Properties[PropLatestDate] = o.LatestPerimeterDate.String()
		f.Properties[PropFilled] = o.Filled
		fc.Append(f)
	}
	return fc
}

// DifferenceFeatures encodes the difference records, one feature per
// incident per day.
func DifferenceFeatures(diffs []domain.DifferenceRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range diffs {
		f := geojson.NewFeature(multiPolygon(r.Geometry))
		f.Properties[PropIncidentName] = r.Incident
		f.Properties[PropDiscoveryTime] = formatTime(r.DiscoveryTime)
		f.Properties[PropDate] = r.Date.String()
		f.Properties[PropRepeated] = r.Repeated
		fc.Append(f)
	}
	return fc
}

// multiPolygon keeps every feature of a layer the same geometry type. A
// geometry without areal parts becomes an empty MultiPolygon so the feature
// still marks its day.
func multiPolygon(g orb.Geometry) orb.MultiPolygon {
	mp, ok := geo.ToMultiPolygon(g)
	if !ok {
		return orb.MultiPolygon{}
	}
	return mp
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func writeCollection(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data)
}

func writeSummary(path string, perimeters []domain.Observation) error {
	return writeAtomic(path, func(f *os.File) error {
		cw := csv.NewWriter(f)
		if err := cw.Write([]string{"incident", "date", "acres", "filled", "latest_perimeter_date"}); err != nil {
			return err
		}
		for _, o := range perimeters {
			if err := cw.Write([]string{
				o.Incident,
				o.Date.String(),
				strconv.FormatFloat(o.Acres, 'f', -1, 64),
				strconv.FormatBool(o.Filled),
				o.LatestPerimeterDate.String(),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func writeFileAtomic(path string, data []byte) error {
	return writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// writeAtomic writes through a temp file in the target folder and renames it
// into place, so readers never see a half-written layer.
func writeAtomic(path string, fill func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := fill(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
