package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/paulmach/orb"
)

// ErrInvalidDisaster is returned when a descriptor lacks the fields that
// anchor a processing run.
var ErrInvalidDisaster = errors.New("invalid disaster descriptor")

// PerimeterSource selects which ingestion path builds a disaster's perimeters.
type PerimeterSource string

const (
	SourceWFIGS      PerimeterSource = "wfigs"
	SourceCopernicus PerimeterSource = "copernicus"
)

// copernicusTimezone marks descriptors whose perimeters come from Copernicus EMS.
const copernicusTimezone = "Europe/Istanbul"

var disasterIDPattern = regexp.MustCompile(`^[0-9a-z-]+$`)

// Disaster is one entry of the disasters config: the event, its date range
// and the area the map covers.
type Disaster struct {
	ID        string
	Type      string
	Name      string
	DateStart string
	DateEnd   string
	IsOngoing bool

	// BBox is nil when the descriptor has no bounding box (fields set to false).
	BBox *orb.Bound

	LocalTimezone string

	// WFIGSIncidentName holds the comma-separated Copernicus activation codes
	// for international disasters.
	WFIGSIncidentName string

	// SourceOverride forces a perimeter source; empty means infer it.
	SourceOverride PerimeterSource
}

// ValidateID checks a disaster id against the folder naming convention.
func ValidateID(id string) error {
	if !disasterIDPattern.MatchString(id) {
		return fmt.Errorf("%w: id %q must contain only lowercase letters, digits and hyphens", ErrInvalidDisaster, id)
	}
	return nil
}

// Window parses the descriptor's start and end dates.
func (d Disaster) Window() (start, end Date, err error) {
	if d.DateStart == "" {
		return Date{}, Date{}, fmt.Errorf("%w: %s: dateStart is required", ErrInvalidDisaster, d.ID)
	}
	if d.DateEnd == "" {
		return Date{}, Date{}, fmt.Errorf("%w: %s: dateEnd is required", ErrInvalidDisaster, d.ID)
	}
	start, err = ParseDate(d.DateStart)
	if err != nil {
		return Date{}, Date{}, fmt.Errorf("%w: %s: dateStart: %v", ErrInvalidDisaster, d.ID, err)
	}
	end, err = ParseDate(d.DateEnd)
	if err != nil {
		return Date{}, Date{}, fmt.Errorf("%w: %s: dateEnd: %v", ErrInvalidDisaster, d.ID, err)
	}
	if end.Before(start) {
		return Date{}, Date{}, fmt.Errorf("%w: %s: dateEnd %s is before dateStart %s", ErrInvalidDisaster, d.ID, end, start)
	}
	return start, end, nil
}

// Validate reports whether the descriptor can anchor a processing run.
func (d Disaster) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDisaster)
	}
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if _, _, err := d.Window(); err != nil {
		return err
	}
	if d.Source() == SourceCopernicus && len(d.ActivationCodes()) == 0 {
		return fmt.Errorf("%w: %s: wfigsIncidentName must list Copernicus activation codes", ErrInvalidDisaster, d.ID)
	}
	return nil
}

// Source returns the perimeter ingestion path for the disaster.
func (d Disaster) Source() PerimeterSource {
	if d.SourceOverride != "" {
		return d.SourceOverride
	}
	if d.LocalTimezone == copernicusTimezone {
		return SourceCopernicus
	}
	return SourceWFIGS
}

// ActivationCodes splits WFIGSIncidentName into Copernicus activation codes.
func (d Disaster) ActivationCodes() []string {
	var codes []string
	for _, part := range strings.Split(d.WFIGSIncidentName, ",") {
		if code := strings.TrimSpace(part); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// Active reports whether the disaster still needs refreshing on the given day.
func (d Disaster) Active(today Date) bool {
	if d.IsOngoing {
		return true
	}
	_, end, err := d.Window()
	if err != nil {
		return false
	}
	return !end.Before(today)
}
