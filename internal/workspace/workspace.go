// Package workspace knows where a disaster's input and output files live.
//
//	<root>/input/disasters/<id>/spatial-data/disaster-perimeters   staged raw perimeters
//	<root>/input/disasters/<id>/spatial-data/temp-spatial          download scratch space
//	<root>/output/disasters/<id>/spatial-data/disaster-perimeters  processed layers
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
)

const (
	inputDir     = "input/disasters"
	outputDir    = "output/disasters"
	perimeterDir = "spatial-data/disaster-perimeters"
	tempDir      = "spatial-data/temp-spatial"
)

// disasterFolders is the skeleton created for a new disaster.
var disasterFolders = []string{
	"",
	"facebook/mobility/admin",
	"facebook/mobility/tile",
	"facebook/population-density/tile",
	"facebook/population-density/admin",
	"mapbox-activity",
	perimeterDir,
	"power-outages",
}

// DisasterTypes lists the accepted disaster types.
var DisasterTypes = []string{"fire", "hurricane", "cyclone"}

// Layout resolves folder paths below a data root.
type Layout struct {
	Root string
}

// New returns a layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) InputDir(id string) string {
	return filepath.Join(l.Root, inputDir, id)
}

func (l Layout) OutputDir(id string) string {
	return filepath.Join(l.Root, outputDir, id)
}

// PerimeterInputDir is where downloaders stage raw perimeter files.
func (l Layout) PerimeterInputDir(id string) string {
	return filepath.Join(l.InputDir(id), perimeterDir)
}

// PerimeterOutputDir is where processed perimeter layers are written.
func (l Layout) PerimeterOutputDir(id string) string {
	return filepath.Join(l.OutputDir(id), perimeterDir)
}

// TempDir is scratch space for downloads that are removed after processing.
func (l Layout) TempDir(id string) string {
	return filepath.Join(l.InputDir(id), tempDir)
}

// NewDisaster describes a disaster to scaffold.
type NewDisaster struct {
	ID           string
	Type         string
	Name         string
	DateStart    string
	DateEnd      string
	Lat          float64
	Lng          float64
	Zoom         float64
	HourInterval int
	States       []string
}

type point struct {
	Lng any `json:"lng"`
	Lat any `json:"lat"`
}

type boundingBox struct {
	SW point `json:"sw"`
	NE point `json:"ne"`
}

type configFile struct {
	ID                         string      `json:"id"`
	Type                       string      `json:"type"`
	Name                       string      `json:"name"`
	Lat                        float64     `json:"lat"`
	Lng                        float64     `json:"lng"`
	Zoom                       float64     `json:"zoom"`
	DateStart                  string      `json:"dateStart"`
	DateEnd                    string      `json:"dateEnd"`
	DataReportingIntervalHours int         `json:"dataReportingIntervalHours"`
	USStatesAffected           []string    `json:"usStatesAffected"`
	BoundingBox                boundingBox `json:"boundingBox"`
	Draft                      bool        `json:"draft"`
	Default                    bool        `json:"default"`
}

// Init creates the input folder skeleton for a new disaster and writes a
// draft config.json with an unset bounding box. It returns the config path.
func (l Layout) Init(nd NewDisaster) (string, error) {
	if err := domain.ValidateID(nd.ID); err != nil {
		return "", err
	}
	if !validType(nd.Type) {
		return "", fmt.Errorf("%w: type %q must be one of %v", domain.ErrInvalidDisaster, nd.Type, DisasterTypes)
	}
	if nd.HourInterval <= 0 {
		nd.HourInterval = 8
	}

	base := l.InputDir(nd.ID)
	for _, folder := range disasterFolders {
		if err := os.MkdirAll(filepath.Join(base, folder), 0o755); err != nil {
			return "", fmt.Errorf("create folder %s: %w", folder, err)
		}
	}

	cfg := configFile{
		ID:                         nd.ID,
		Type:                       nd.Type,
		Name:                       nd.Name,
		Lat:                        nd.Lat,
		Lng:                        nd.Lng,
		Zoom:                       nd.Zoom,
		DateStart:                  nd.DateStart,
		DateEnd:                    nd.DateEnd,
		DataReportingIntervalHours: nd.HourInterval,
		USStatesAffected:           nd.States,
		BoundingBox: boundingBox{
			SW: point{Lng: false, Lat: false},
			NE: point{Lng: false, Lat: false},
		},
		Draft: true,
	}
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	path := filepath.Join(base, "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

func validType(t string) bool {
	for _, known := range DisasterTypes {
		if t == known {
			return true
		}
	}
	return false
}
