package wfigs

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
)

const (
	propGlobalID    = "poly_GlobalID"
	propIrwinName   = "irwin_IncidentName"
	propIrwinFireID = "irwin_UniqueFireIdentifier"
	propGISAcres    = "poly_GISAcres"
	propDateCurrent = "poly_DateCurrent"
	propCreateDate  = "poly_CreateDate"
	searchOutFields = propIncidentName + "," + propIrwinName + "," + propPolygonTime + "," + propDateCurrent + "," + propCreateDate + "," + propGlobalID + "," + propIrwinFireID + "," + propGISAcres
)

// ActivePerimeter is one perimeter currently published by the active
// perimeters service. It is what a new disaster descriptor needs to name
// its incident.
type ActivePerimeter struct {
	Name        string
	IrwinName   string
	GlobalID    string
	FireID      string
	Acres       float64
	PolygonTime time.Time
}

// SearchURL builds the attribute-only query listing every active perimeter.
func SearchURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse WFIGS current url: %w", err)
	}
	q := u.Query()
	q.Set("where", "1=1")
	q.Set("outFields", searchOutFields)
	q.Set("returnGeometry", "false")
	q.Set("outSR", "4326")
	q.Set("f", "geojson")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Search lists the active perimeters whose incident name contains name,
// ignoring case. An empty name matches every perimeter. Results are sorted
// by name, newest polygon first within a name.
func Search(ctx context.Context, fetcher Fetcher, base, name string) ([]ActivePerimeter, error) {
	queryURL, err := SearchURL(base)
	if err != nil {
		return nil, err
	}
	data, err := fetcher.GetBytes(ctx, queryURL)
	if err != nil {
		return nil, fmt.Errorf("query active perimeters: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode active perimeters: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(name))
	var out []ActivePerimeter
	for _, f := range fc.Features {
		p := activePerimeter(f)
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].PolygonTime.After(out[j].PolygonTime)
	})
	return out, nil
}

func activePerimeter(f *geojson.Feature) ActivePerimeter {
	p := ActivePerimeter{
		Name:      incidentName(f),
		IrwinName: stringProp(f, propIrwinName),
		GlobalID:  stringProp(f, propGlobalID),
		FireID:    stringProp(f, propIrwinFireID),
	}
	if acres, ok := f.Properties[propGISAcres].(float64); ok {
		p.Acres = acres
	}
	if t, ok := polygonTime(f); ok {
		p.PolygonTime = t
	}
	return p
}

func stringProp(f *geojson.Feature, key string) string {
	v, _ := f.Properties[key].(string)
	return strings.TrimSpace(v)
}
