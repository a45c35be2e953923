package billing

import (
	"time"
	_ "time/tzdata" // Asia/Baku must resolve on hosts without a zoneinfo database
)

// =============================================================================
// FIXED-ZONE CALENDAR - Billing runs on the Asia/Baku civil calendar
// =============================================================================

// ZoneName is the time zone every billing comparison uses.
const ZoneName = "Asia/Baku"

// DateLayout is the calendar date format used in records and query strings.
const DateLayout = "2006-01-02"

// Zone is the loaded Asia/Baku location.
var Zone = loadZone()

func loadZone() *time.Location {
	loc, err := time.LoadLocation(ZoneName)
	if err != nil {
		// Baku has observed UTC+4 without DST since 2016.
		return time.FixedZone("+04", 4*60*60)
	}
	return loc
}

// Clock supplies "now". Services take a Clock so tests can pin the date.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().In(Zone) }

// FixedClock always returns the same instant.
type FixedClock struct{ At time.Time }

func (c FixedClock) Now() time.Time { return c.At.In(Zone) }

// Date builds a midnight instant in the billing zone.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Zone)
}

// ParseDate parses a YYYY-MM-DD date (or RFC3339 instant) in the billing zone.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(DateLayout, s, Zone); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(Zone), nil
}

// Ptr returns a pointer to t, for optional date fields.
func Ptr(t time.Time) *time.Time { return &t }

// Boundaries
func StartOfDay(t time.Time) time.Time {
	t = t.In(Zone)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Zone)
}

func EndOfDay(t time.Time) time.Time {
	t = t.In(Zone)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Millisecond), Zone)
}

func StartOfMonth(t time.Time) time.Time {
	t = t.In(Zone)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, Zone)
}

func EndOfMonth(t time.Time) time.Time {
	return EndOfDay(StartOfMonth(t).AddDate(0, 1, -1))
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, Zone).Day()
}

// AddMonths moves t by n calendar months, clamping the day to the length
// of the target month (Jan 31 + 1 month = Feb 28). Clock time is kept.
func AddMonths(t time.Time, n int) time.Time {
	t = t.In(Zone)
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, Zone)
	day := t.Day()
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), Zone)
}

// MonthsBetween counts whole months from `from` to `to`, truncated toward
// zero. A month is whole when AddMonths(from, n) has not passed `to`.
// Negative when `to` precedes `from`.
func MonthsBetween(from, to time.Time) int {
	from, to = from.In(Zone), to.In(Zone)
	n := MonthSpan(from, to)
	if !to.Before(from) {
		for n > 0 && AddMonths(from, n).After(to) {
			n--
		}
		return n
	}
	for n < 0 && AddMonths(from, n).Before(to) {
		n++
	}
	return n
}

// MonthSpan is the calendar-month distance, ignoring days:
// (years × 12) + month delta.
func MonthSpan(from, to time.Time) int {
	from, to = from.In(Zone), to.In(Zone)
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// AsOf clamps a reference date to now; billing never runs ahead of today.
func AsOf(reference, now time.Time) time.Time {
	if reference.IsZero() || reference.After(now) {
		return now
	}
	return reference
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
