// Package timezone converts between civil wall-clock time in the business
// timezone and absolute instants.
package timezone

import (
	"fmt"
	"time"

	"github.com/Leganyst/master-booking/internal/apperr"
)

const (
	DateLayout      = "2006-01-02"
	WallClockLayout = "15:04"
)

// Date: календарная дата без времени и зоны.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// AddDays normalises through time.Date, so month/year rollover is handled.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ISOWeekday returns Monday=1 .. Sunday=7.
func (d Date) ISOWeekday() int {
	wd := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

// WallClock: время суток "HH:MM".
type WallClock struct {
	Hour   int
	Minute int
}

func ParseWallClock(s string) (WallClock, error) {
	t, err := time.Parse(WallClockLayout, s)
	if err != nil {
		return WallClock{}, fmt.Errorf("parse wall clock %q: %w", s, err)
	}
	return WallClock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (w WallClock) String() string {
	return fmt.Sprintf("%02d:%02d", w.Hour, w.Minute)
}

func (w WallClock) Minutes() int { return w.Hour*60 + w.Minute }

// Converter is bound to one IANA zone for the lifetime of the process.
type Converter struct {
	loc *time.Location
}

// NewConverter resolves the zone id. An unknown id is a configuration error
// and is expected to abort startup.
func NewConverter(zone string) (*Converter, error) {
	if zone == "" {
		return nil, apperr.Configuration(nil, "business timezone is empty")
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, apperr.Configuration(err, "unknown timezone %q", zone)
	}
	return &Converter{loc: loc}, nil
}

// NewConverterFromLocation is used where the zone is already resolved (tests, fixed offsets).
func NewConverterFromLocation(loc *time.Location) *Converter {
	return &Converter{loc: loc}
}

func (c *Converter) Location() *time.Location { return c.loc }

// ToInstant interprets wc on date as civil time in the configured zone.
// Wall-clock times that fall into a DST gap are normalised forward by time.Date.
func (c *Converter) ToInstant(date Date, wc WallClock) time.Time {
	return time.Date(date.Year, date.Month, date.Day, wc.Hour, wc.Minute, 0, 0, c.loc)
}

func (c *Converter) InstantToWallClock(t time.Time) WallClock {
	local := t.In(c.loc)
	return WallClock{Hour: local.Hour(), Minute: local.Minute()}
}

// DateOf returns the civil date of t in the configured zone.
func (c *Converter) DateOf(t time.Time) Date {
	local := t.In(c.loc)
	return Date{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}
