package perimeter

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/LindsayBradford/go-dbf/godbf"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/geo"
)

var (
	versionSuffix   = regexp.MustCompile(`_v\d+$`)
	productName     = regexp.MustCompile(`^(\w+?)_AOI\d+_(.+)$`)
	observedEventRe = regexp.MustCompile(`(?i)observedEventA_v\d+\.json$`)
	sourceTableRe   = regexp.MustCompile(`(?i)(^|_)source_v\d+\.dbf$`)
)

// Copernicus source table columns.
const (
	colEventPhase = "eventphase"
	colSourceDate = "src_date"
	postEvent     = "Post-event"
	dbfEncoding   = "UTF8"
	propAreaHa    = "area"
)

// ErrMissingMember is returned when a product archive lacks the observed
// event layer or its source table.
var ErrMissingMember = errors.New("product archive member missing")

// CopernicusSource reads Copernicus EMS activation archives. Each outer
// archive (<EMSR>_products.zip) holds one zip per product; every product
// becomes one observation dated by the post-event source image.
type CopernicusSource struct {
	geometry GeometryProcessor
	logger   *slog.Logger
}

// NewCopernicusSource creates a CopernicusSource.
func NewCopernicusSource(geometry GeometryProcessor, logger *slog.Logger) *CopernicusSource {
	return &CopernicusSource{geometry: geometry, logger: logger}
}

// Name implements Source.
func (s *CopernicusSource) Name() domain.PerimeterSource { return domain.SourceCopernicus }

// Read implements Source. Archives are extracted below a fresh directory in
// in.TempDir that is removed before Read returns.
func (s *CopernicusSource) Read(ctx context.Context, in Input) ([]domain.Observation, []FileResult, error) {
	archives, err := findFiles(in.Dir, func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), ".zip")
	})
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(in.TempDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create temp dir: %w", err)
	}
	scratch, err := os.MkdirTemp(in.TempDir, "copernicus-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	var (
		obs     []domain.Observation
		results []FileResult
	)
	for i, archive := range archives {
		if err := ctx.Err(); err != nil {
			return nil, results, err
		}
		products, err := extractProducts(archive, filepath.Join(scratch, fmt.Sprintf("%03d", i)))
		if err != nil {
			results = append(results, FileResult{Path: archive, Err: err})
			continue
		}
		if len(products) == 0 {
			results = append(results, FileResult{Path: archive, Err: fmt.Errorf("%s: no product archives inside", archive)})
			continue
		}
		for _, product := range products {
			path := filepath.Join(archive, filepath.Base(product))
			o, err := s.readProduct(product)
			if err != nil {
				results = append(results, FileResult{Path: path, Err: err})
				continue
			}
			o.SourceFile = path
			s.logger.Debug("product read", "path", path, "incident", o.Incident, "product", o.Product.Code, "date", o.Date)
			results = append(results, FileResult{Path: path, Observations: 1})
			obs = append(obs, o)
		}
	}
	return obs, results, nil
}

// readProduct turns one product archive into an observation: the union of
// its observed event features, dated by the post-event source row.
func (s *CopernicusSource) readProduct(path string) (domain.Observation, error) {
	code, productCode, err := parseProductName(filepath.Base(path))
	if err != nil {
		return domain.Observation{}, err
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer zr.Close()

	var layer, table *zip.File
	for _, f := range zr.File {
		switch base := filepath.Base(f.Name); {
		case observedEventRe.MatchString(base):
			layer = f
		case sourceTableRe.MatchString(base):
			table = f
		}
	}
	if layer == nil {
		return domain.Observation{}, fmt.Errorf("%s: %w: observedEventA", filepath.Base(path), ErrMissingMember)
	}
	if table == nil {
		return domain.Observation{}, fmt.Errorf("%s: %w: source table", filepath.Base(path), ErrMissingMember)
	}

	day, err := postEventDate(table)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	geom, acres, err := s.readLayer(layer)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	return domain.Observation{
		Incident: code,
		Date:     day,
		Geometry: geom,
		Acres:    acres,
		Product:  domain.ParseProduct(productCode),
	}, nil
}

// readLayer repairs and merges the observed event features. Acres come from
// the features' area attribute in hectares, or from the geometry when no
// feature carries one.
func (s *CopernicusSource) readLayer(f *zip.File) (orb.Geometry, float64, error) {
	data, err := readMember(f)
	if err != nil {
		return nil, 0, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, fmt.Errorf("parse %s: %w", f.Name, err)
	}

	var (
		geoms    []orb.Geometry
		hectares float64
		hasArea  bool
	)
	for _, feat := range fc.Features {
		if !isAreal(feat.Geometry) {
			continue
		}
		repaired, err := s.geometry.Repair(feat.Geometry)
		if err != nil {
			return nil, 0, err
		}
		geoms = append(geoms, repaired)
		if ha, ok := feat.Properties[propAreaHa].(float64); ok {
			hectares += ha
			hasArea = true
		}
	}
	if len(geoms) == 0 {
		return nil, 0, fmt.Errorf("%s has no polygon features", f.Name)
	}

	geom := geoms[0]
	if len(geoms) > 1 {
		if geom, err = s.geometry.Merge(geoms); err != nil {
			return nil, 0, err
		}
	}

	if hasArea {
		return geom, math.Round(hectares * geo.HectaresToAcres), nil
	}
	acres, err := s.geometry.Acres(geom)
	if err != nil {
		return nil, 0, err
	}
	return geom, acres, nil
}

func postEventDate(f *zip.File) (domain.Date, error) {
	rc, err := f.Open()
	if err != nil {
		return domain.Date{}, fmt.Errorf("open %s: %w", f.Name, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return domain.Date{}, fmt.Errorf("read %s: %w", f.Name, err)
	}

	table, err := godbf.NewFromByteArray(data, dbfEncoding)
	if err != nil {
		return domain.Date{}, fmt.Errorf("read %s: %w", f.Name, err)
	}
	phase, ok := tableField(table, colEventPhase)
	if !ok {
		return domain.Date{}, fmt.Errorf("%s has no %s column", f.Name, colEventPhase)
	}
	srcDate, ok := tableField(table, colSourceDate)
	if !ok {
		return domain.Date{}, fmt.Errorf("%s has no %s column", f.Name, colSourceDate)
	}

	for row := 0; row < table.NumberOfRecords(); row++ {
		v, err := table.FieldValueByName(row, phase)
		if err != nil {
			return domain.Date{}, fmt.Errorf("%s row %d: %w", f.Name, row, err)
		}
		if !strings.EqualFold(strings.TrimSpace(v), postEvent) {
			continue
		}
		raw, err := table.FieldValueByName(row, srcDate)
		if err != nil {
			return domain.Date{}, fmt.Errorf("%s row %d: %w", f.Name, row, err)
		}
		day, err := domain.ParseDate(strings.TrimSpace(raw))
		if err != nil {
			return domain.Date{}, fmt.Errorf("%s %s: %w", f.Name, colSourceDate, err)
		}
		return day, nil
	}
	return domain.Date{}, fmt.Errorf("%s has no %s row", f.Name, postEvent)
}

// tableField resolves a column name case-insensitively; dBase stores field
// names upper-cased.
func tableField(table *godbf.DbfTable, name string) (string, bool) {
	for _, f := range table.FieldNames() {
		if strings.EqualFold(strings.TrimSpace(f), name) {
			return f, true
		}
	}
	return "", false
}

// parseProductName splits EMSR686_AOI01_DEL_MONIT01_v1.zip into the
// activation code and the product code.
func parseProductName(name string) (code, product string, err error) {
	stem := versionSuffix.ReplaceAllString(strings.TrimSuffix(name, filepath.Ext(name)), "")
	m := productName.FindStringSubmatch(stem)
	if m == nil {
		return "", "", fmt.Errorf("unrecognized product archive name %q", name)
	}
	return m[1], m[2], nil
}

// extractProducts copies the product zips of an activation archive into dir.
// Member paths are flattened to their base names.
func extractProducts(archive, dir string) ([]string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", archive, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var out []string
	for _, f := range zr.File {
		base := filepath.Base(f.Name)
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(base), ".zip") {
			continue
		}
		dst := filepath.Join(dir, base)
		if err := extractMember(f, dst); err != nil {
			return nil, fmt.Errorf("extract %s from %s: %w", base, archive, err)
		}
		out = append(out, dst)
	}
	return out, nil
}

func extractMember(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
