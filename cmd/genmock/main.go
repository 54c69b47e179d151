// Command genmock writes a synthetic perimeter input tree for local runs and
// end-to-end checks: one domestic (WFIGS) disaster with a missing day and
// one international (Copernicus EMS) disaster whose activation holds two
// competing products for the same day. It also writes the disasters file
// listing both.
//
// Usage:
//
//	go run ./cmd/genmock -data-dir /tmp/perimeters
//	DATA_DIR=/tmp/perimeters go run ./cmd/perimeters process --all
//	go run ./cmd/validate -data-dir /tmp/perimeters -id 2021-marshall-fire
package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/LindsayBradford/go-dbf/godbf"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/workspace"
)

const (
	domesticID      = "2021-marshall-fire"
	internationalID = "2023-evros-wildfire"
	activation      = "EMSR686"
)

var discovered = time.Date(2021, time.December, 30, 18, 0, 0, 0, time.UTC)

// perimeterDay is one synthetic observation: a square growing with size.
type perimeterDay struct {
	incident string
	day      string
	size     float64
	acres    float64
}

// domesticDays skips 20211231 so the run has a day to fill.
var domesticDays = []perimeterDay{
	{"Marshall", "20211230", 0.02, 6026},
	{"Marshall", "20220101", 0.03, 6080},
	{"Marshall", "20220102", 0.03, 6080},
	{"Middle Fork", "20211230", 0.005, 14},
}

// product is one inner archive of the Copernicus activation.
type product struct {
	name    string
	srcDate string
	size    float64
	areaHa  float64
}

// Two products share 24/08/2023; the monitoring product wins.
var products = []product{
	{"EMSR686_AOI01_DEL_MONIT01_v1", "22/08/2023", 0.05, 4100},
	{"EMSR686_AOI01_DEL_MONIT02_v1", "24/08/2023", 0.08, 9800},
	{"EMSR686_AOI01_GRA_PRODUCT_v1", "24/08/2023", 0.07, 9000},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dataDir := flag.String("data-dir", "", "data root to write the input tree below")
	flag.Parse()

	if *dataDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -data-dir")
	}
	layout := workspace.New(*dataDir)

	n, err := writeDomestic(layout.PerimeterInputDir(domesticID))
	if err != nil {
		return fmt.Errorf("writing domestic fixture: %w", err)
	}
	log.Printf("%s: %d perimeter files", domesticID, n)

	path, err := writeActivation(layout.PerimeterInputDir(internationalID))
	if err != nil {
		return fmt.Errorf("writing Copernicus fixture: %w", err)
	}
	log.Printf("%s: %s (%d products)", internationalID, path, len(products))

	disastersFile := filepath.Join(*dataDir, "output", "disasters", "disasters.json")
	if err := writeJSON(disastersFile, disasters()); err != nil {
		return fmt.Errorf("writing disasters file: %w", err)
	}
	log.Printf("wrote disasters file: %s", disastersFile)
	return nil
}

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

func writeDomestic(dir string) (int, error) {
	for _, p := range domesticDays {
		f := geojson.NewFeature(square(-105.2, 39.9, p.size))
		f.Properties["poly_IncidentName"] = p.incident
		f.Properties["poly_GISAcres"] = p.acres
		f.Properties["irwin_FireDiscoveryDateTime"] = discovered.UnixMilli()
		fc := geojson.NewFeatureCollection().Append(f)

		data, err := fc.MarshalJSON()
		if err != nil {
			return 0, err
		}
		path := filepath.Join(dir, p.incident, p.day+".geojson")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return 0, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return 0, err
		}
	}
	return len(domesticDays), nil
}

func writeActivation(dir string) (string, error) {
	var outer bytes.Buffer
	zw := zip.NewWriter(&outer)
	for _, p := range products {
		inner, err := productArchive(p)
		if err != nil {
			return "", fmt.Errorf("%s: %w", p.name, err)
		}
		w, err := zw.Create(p.name + ".zip")
		if err != nil {
			return "", err
		}
		if _, err := w.Write(inner); err != nil {
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, activation+"_products.zip")
	return path, os.WriteFile(path, outer.Bytes(), 0o644)
}

// productArchive builds the observed event layer and the source table of
// one product.
func productArchive(p product) ([]byte, error) {
	f := geojson.NewFeature(square(26.1, 40.9, p.size))
	f.Properties["area"] = p.areaHa
	layer, err := geojson.NewFeatureCollection().Append(f).MarshalJSON()
	if err != nil {
		return nil, err
	}

	table, err := sourceTable([][2]string{
		{"Pre-event", "01/07/2023"},
		{"Post-event", p.srcDate},
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range map[string][]byte{
		p.name + "_observedEventA_v1.json": layer,
		p.name + "_source_v1.dbf":          table,
	} {
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sourceTable encodes the eventphase/src_date table of a product. godbf only
// saves to a path, so the table round-trips through a temp file.
func sourceTable(rows [][2]string) ([]byte, error) {
	table := godbf.New("UTF8")
	if err := table.AddTextField("eventphase", 16); err != nil {
		return nil, err
	}
	if err := table.AddTextField("src_date", 10); err != nil {
		return nil, err
	}
	for _, r := range rows {
		row, err := table.AddNewRecord()
		if err != nil {
			return nil, err
		}
		if err := table.SetFieldValueByName(row, "eventphase", r[0]); err != nil {
			return nil, err
		}
		if err := table.SetFieldValueByName(row, "src_date", r[1]); err != nil {
			return nil, err
		}
	}

	tmp, err := os.CreateTemp("", "source-*.dbf")
	if err != nil {
		return nil, err
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)
	if err := godbf.SaveToFile(table, path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func disasters() []map[string]any {
	return []map[string]any{
		{
			"id":        domesticID,
			"type":      "fire",
			"name":      "Marshall Fire",
			"dateStart": "2021-12-30",
			"dateEnd":   "2022-01-03",
			"swLng":     -105.35, "swLat": 39.85, "neLng": -105.05, "neLat": 40.05,
		},
		{
			"id":                internationalID,
			"type":              "fire",
			"name":              "Evros Wildfire",
			"dateStart":         "2023-08-19",
			"dateEnd":           "2023-09-30",
			"localTimezone":     "Europe/Istanbul",
			"wfigsIncidentName": activation,
			"swLng":             false, "swLat": false, "neLng": false, "neLat": false,
		},
	}
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
