// Command validate checks the processed perimeter layers of a disaster
// against the sequence rules the front-end relies on: one feature per
// incident per day, no missing days, a difference layer aligned with the
// perimeter layer and a summary matching both.
//
// Usage:
//
//	go run ./cmd/validate -data-dir . -id 2021-marshall-fire
//	go run ./cmd/validate -dir output/disasters/2021-marshall-fire/spatial-data/disaster-perimeters
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/adapter/geojsonfile"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/workspace"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "", "perimeter output folder")
	dataDir := flag.String("data-dir", "", "data root, used with -id")
	id := flag.String("id", "", "disaster id, used with -data-dir")
	flag.Parse()

	if *dir == "" && *id != "" {
		*dir = workspace.New(*dataDir).PerimeterOutputDir(*id)
	}
	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir); code != 0 {
		os.Exit(code)
	}
}

func run(dir string) int {
	fmt.Println("=== Perimeter Output Validation ===")
	fmt.Println(dir)

	perims, err := loadCollection(filepath.Join(dir, geojsonfile.PerimetersFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load perimeters: %v\n", err)
		return 1
	}
	diffs, err := loadCollection(filepath.Join(dir, geojsonfile.DifferencesFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load differences: %v\n", err)
		return 1
	}
	summary, err := loadSummary(filepath.Join(dir, geojsonfile.SummaryFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load summary: %v\n", err)
		return 1
	}

	phases := []*phase{
		validatePerimeters(perims),
		validateDifferences(diffs, perims),
		validateSummary(summary, perims),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Features: %d perimeters, %d differences, %d summary rows\n",
		len(perims.Features), len(diffs.Features), len(summary))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Loading ──

func loadCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geojson.UnmarshalFeatureCollection(data)
}

func loadSummary(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: missing header", filepath.Base(path))
	}
	return rows[1:], nil
}

// ── Sequence helpers ──

// incidentDays maps each incident to its feature dates in file order. Bad
// feature properties are reported on p.
func incidentDays(p *phase, fc *geojson.FeatureCollection) map[string][]domain.Date {
	days := make(map[string][]domain.Date)
	for i, f := range fc.Features {
		if _, ok := f.Geometry.(orb.MultiPolygon); !ok {
			p.errorf("feature %d: geometry is %s, want MultiPolygon", i, f.Geometry.GeoJSONType())
		}
		name, ok := f.Properties[geojsonfile.PropIncidentName].(string)
		if !ok || name == "" {
			p.errorf("feature %d: missing %s", i, geojsonfile.PropIncidentName)
			continue
		}
		raw, _ := f.Properties[geojsonfile.PropDate].(string)
		day, err := domain.ParseDate(raw)
		if err != nil {
			p.errorf("feature %d (%s): bad %s %q", i, name, geojsonfile.PropDate, raw)
			continue
		}
		days[name] = append(days[name], day)
	}
	return days
}

func sortedNames(m map[string][]domain.Date) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// checkSequence reports duplicated and missing days in one incident's dates.
func checkSequence(p *phase, layer, name string, days []domain.Date) {
	sorted := append([]domain.Date(nil), days...)
	domain.SortDates(sorted)
	for i := 1; i < len(sorted); i++ {
		switch gap := sorted[i-1].DaysUntil(sorted[i]); {
		case gap == 0:
			p.errorf("%s %q: more than one feature on %s", layer, name, sorted[i])
		case gap > 1:
			p.errorf("%s %q: %d days missing after %s", layer, name, gap-1, sorted[i-1])
		}
	}
}

// ── Validation phases ──

func validatePerimeters(fc *geojson.FeatureCollection) *phase {
	p := &phase{name: "Perimeter layer sequence"}
	days := incidentDays(p, fc)
	for _, name := range sortedNames(days) {
		checkSequence(p, "perimeters", name, days[name])
	}

	latest := make(map[string]string)
	for i, f := range fc.Features {
		name, _ := f.Properties[geojsonfile.PropIncidentName].(string)
		l, _ := f.Properties[geojsonfile.PropLatestDate].(string)
		if l == "" {
			p.errorf("feature %d (%s): missing %s", i, name, geojsonfile.PropLatestDate)
			continue
		}
		if prev, ok := latest[name]; ok && prev != l {
			p.errorf("perimeters %q: %s differs between features (%s, %s)", name, geojsonfile.PropLatestDate, prev, l)
		}
		latest[name] = l
		if acres, ok := f.Properties[geojsonfile.PropAcres].(float64); !ok || acres < 0 || math.IsNaN(acres) {
			p.errorf("feature %d (%s): bad %s", i, name, geojsonfile.PropAcres)
		}
	}
	return p
}

func validateDifferences(diffs, perims *geojson.FeatureCollection) *phase {
	p := &phase{name: "Difference layer alignment"}
	diffDays := incidentDays(p, diffs)
	perimDays := incidentDays(&phase{}, perims)

	for _, name := range sortedNames(diffDays) {
		checkSequence(p, "differences", name, diffDays[name])
		if _, ok := perimDays[name]; !ok {
			p.errorf("differences %q: incident not in perimeter layer", name)
		}
	}
	for _, name := range sortedNames(perimDays) {
		got := append([]domain.Date(nil), diffDays[name]...)
		want := append([]domain.Date(nil), perimDays[name]...)
		domain.SortDates(got)
		domain.SortDates(want)
		if len(got) != len(want) {
			p.errorf("%q: %d difference features for %d perimeter days", name, len(got), len(want))
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				p.errorf("%q: difference day %s does not match perimeter day %s", name, got[i], want[i])
				break
			}
		}
	}
	return p
}

func validateSummary(rows [][]string, perims *geojson.FeatureCollection) *phase {
	p := &phase{name: "Summary matches perimeter layer"}
	if len(rows) != len(perims.Features) {
		p.errorf("%d summary rows for %d perimeter features", len(rows), len(perims.Features))
		return p
	}
	for i, row := range rows {
		if len(row) < 3 {
			p.errorf("row %d: %d columns", i+1, len(row))
			continue
		}
		props := perims.Features[i].Properties
		if row[0] != props[geojsonfile.PropIncidentName] || row[1] != props[geojsonfile.PropDate] {
			p.errorf("row %d: %s/%s does not match feature %v/%v", i+1, row[0], row[1],
				props[geojsonfile.PropIncidentName], props[geojsonfile.PropDate])
			continue
		}
		acres, err := strconv.ParseFloat(row[2], 64)
		want, _ := props[geojsonfile.PropAcres].(float64)
		if err != nil || acres != want {
			p.errorf("row %d: acres %s, feature has %v", i+1, row[2], want)
		}
	}
	return p
}
