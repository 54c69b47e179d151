package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Date is a calendar day with no time or zone. The zero value is unset.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// dateLayouts lists the date-only layouts accepted by ParseDate. Any time
// component after a space or "T" is ignored before matching.
var dateLayouts = []string{
	"20060102",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
}

// ParseDate reads a calendar day from the formats used by disaster
// descriptors ("2022-01-01 0:00"), perimeter file names ("20220101") and
// Copernicus source tables ("01/01/2022").
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("parse date: empty value")
	}
	day := s
	if i := strings.IndexAny(s, " T"); i > 0 {
		day = s[:i]
	}
	for _, layout := range dateLayouts {
		if len(day) != len(layout) {
			continue
		}
		if t, err := time.Parse(layout, day); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("parse date %q: unrecognized format", s)
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current UTC day from the package clock.
func Today() Date {
	return DateOf(clock.Now().UTC())
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d == Date{} }

// String formats the day as YYYYMMDD, the key the map front-end reads.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format("20060102")
}

// AddDays returns the date n days later (earlier when n is negative).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after other.
func (d Date) Compare(other Date) int {
	return d.Time().Compare(other.Time())
}

func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }
func (d Date) After(other Date) bool  { return d.Compare(other) > 0 }

// DaysUntil returns the number of days from d to end. Negative when end is
// before d.
func (d Date) DaysUntil(end Date) int {
	return int(end.Time().Sub(d.Time()).Hours() / 24)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateRange returns every day from start to end inclusive, or nil when end
// is before start.
func DateRange(start, end Date) []Date {
	n := start.DaysUntil(end)
	if n < 0 {
		return nil
	}
	days := make([]Date, 0, n+1)
	for i := 0; i <= n; i++ {
		days = append(days, start.AddDays(i))
	}
	return days
}

// SortDates orders days ascending in place.
func SortDates(days []Date) {
	slices.SortFunc(days, Date.Compare)
}
