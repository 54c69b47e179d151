// Package disasters loads disaster descriptors from the local disasters
// file, a JSON or YAML list as exported from the disaster catalogue.
package disasters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
)

// ErrNotFound is returned by Get for an unknown disaster id.
var ErrNotFound = errors.New("disaster not found")

// FileProvider reads descriptors from a file on every call, so edits are
// picked up without a restart.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider for path. Files ending in .yaml or
// .yml are read as YAML, anything else as JSON.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Path returns the file the provider reads.
func (p *FileProvider) Path() string { return p.path }

// List returns every descriptor in file order.
func (p *FileProvider) List(_ context.Context) ([]domain.Disaster, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read disasters file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(p.path))
	disasters, err := Parse(data, ext == ".yaml" || ext == ".yml")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.path, err)
	}
	return disasters, nil
}

// Get returns the descriptor with the given id.
func (p *FileProvider) Get(ctx context.Context, id string) (domain.Disaster, error) {
	all, err := p.List(ctx)
	if err != nil {
		return domain.Disaster{}, err
	}
	for _, d := range all {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Disaster{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Parse decodes a list of descriptors, or a single descriptor object.
func Parse(data []byte, isYAML bool) ([]domain.Disaster, error) {
	var (
		list []descriptor
		err  error
	)
	if isYAML {
		list, err = decodeYAML(data)
	} else {
		list, err = decodeJSON(data)
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.Disaster, 0, len(list))
	for i, desc := range list {
		d, err := desc.toDomain()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func decodeJSON(data []byte) ([]descriptor, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var one descriptor
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("decode disaster: %w", err)
		}
		return []descriptor{one}, nil
	}
	var list []descriptor
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, fmt.Errorf("decode disasters: %w", err)
	}
	return list, nil
}

func decodeYAML(data []byte) ([]descriptor, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("decode disasters: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	if node.Content[0].Kind == yaml.MappingNode {
		var one descriptor
		if err := node.Content[0].Decode(&one); err != nil {
			return nil, fmt.Errorf("decode disaster: %w", err)
		}
		return []descriptor{one}, nil
	}
	var list []descriptor
	if err := node.Content[0].Decode(&list); err != nil {
		return nil, fmt.Errorf("decode disasters: %w", err)
	}
	return list, nil
}

// descriptor is the wire shape of one disaster. Bounding box corners are
// numbers, or false when unset; they come either flat (swLng...) or nested
// under boundingBox as written by workspace.Init.
type descriptor struct {
	ID                string       `json:"id" yaml:"id"`
	Type              string       `json:"type" yaml:"type"`
	Name              string       `json:"name" yaml:"name"`
	DateStart         string       `json:"dateStart" yaml:"dateStart"`
	DateEnd           string       `json:"dateEnd" yaml:"dateEnd"`
	IsOngoing         bool         `json:"isOngoing" yaml:"isOngoing"`
	SWLng             any          `json:"swLng" yaml:"swLng"`
	SWLat             any          `json:"swLat" yaml:"swLat"`
	NELng             any          `json:"neLng" yaml:"neLng"`
	NELat             any          `json:"neLat" yaml:"neLat"`
	BoundingBox       *boundingBox `json:"boundingBox" yaml:"boundingBox"`
	LocalTimezone     string       `json:"localTimezone" yaml:"localTimezone"`
	WFIGSIncidentName string       `json:"wfigsIncidentName" yaml:"wfigsIncidentName"`
	PerimeterSource   string       `json:"perimeterSource" yaml:"perimeterSource"`
}

type corner struct {
	Lng any `json:"lng" yaml:"lng"`
	Lat any `json:"lat" yaml:"lat"`
}

type boundingBox struct {
	SW corner `json:"sw" yaml:"sw"`
	NE corner `json:"ne" yaml:"ne"`
}

func (desc descriptor) toDomain() (domain.Disaster, error) {
	d := domain.Disaster{
		ID:                desc.ID,
		Type:              desc.Type,
		Name:              desc.Name,
		DateStart:         desc.DateStart,
		DateEnd:           desc.DateEnd,
		IsOngoing:         desc.IsOngoing,
		LocalTimezone:     desc.LocalTimezone,
		WFIGSIncidentName: desc.WFIGSIncidentName,
	}

	switch src := domain.PerimeterSource(strings.ToLower(desc.PerimeterSource)); src {
	case "", domain.SourceWFIGS, domain.SourceCopernicus:
		d.SourceOverride = src
	default:
		return domain.Disaster{}, fmt.Errorf("%w: %s: unknown perimeterSource %q", domain.ErrInvalidDisaster, desc.ID, desc.PerimeterSource)
	}

	sw, ne := corner{Lng: desc.SWLng, Lat: desc.SWLat}, corner{Lng: desc.NELng, Lat: desc.NELat}
	if desc.BoundingBox != nil {
		sw, ne = desc.BoundingBox.SW, desc.BoundingBox.NE
	}
	bbox, err := toBound(sw, ne)
	if err != nil {
		return domain.Disaster{}, fmt.Errorf("%w: %s: %v", domain.ErrInvalidDisaster, desc.ID, err)
	}
	d.BBox = bbox
	return d, nil
}

// toBound returns nil unless all four corner values are set.
func toBound(sw, ne corner) (*orb.Bound, error) {
	values := [4]any{sw.Lng, sw.Lat, ne.Lng, ne.Lat}
	var coords [4]float64
	for i, v := range values {
		f, ok, err := coordinate(v)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		coords[i] = f
	}
	b := orb.Bound{Min: orb.Point{coords[0], coords[1]}, Max: orb.Point{coords[2], coords[3]}}
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		return nil, fmt.Errorf("bounding box south-west corner %v is not below north-east corner %v", b.Min, b.Max)
	}
	return &b, nil
}

// coordinate reads one corner value. false, null and "" mean unset.
func coordinate(v any) (float64, bool, error) {
	switch c := v.(type) {
	case nil:
		return 0, false, nil
	case bool:
		if c {
			return 0, false, errors.New("bounding box value true is not a coordinate")
		}
		return 0, false, nil
	case float64:
		return c, true, nil
	case int:
		return float64(c), true, nil
	case string:
		if c == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return 0, false, fmt.Errorf("bounding box value %q is not a number", c)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("bounding box value %v has unsupported type %T", v, v)
	}
}
