/*
Package dates provides timezone-stable calendar dates for the leave scheduler.

PURPOSE:
  Every date in the system passes through Normalize before comparison,
  storage-key formatting, or arithmetic. Normalization pins the time-of-day
  component to local noon, which eliminates the classic off-by-one-day bug
  where a midnight timestamp shifts across a day boundary during timezone
  or DST conversion.

KEY CONCEPTS IN THIS FILE (dates.go):
  - Date: a noon-normalized calendar date
  - Key:  the YYYY-MM-DD wire format (the ONLY date format crossing the API)
  - Round-trip law: FromKey(d.Key()) is idempotent under Normalize

USAGE:
  d := dates.Normalize(time.Now())
  key := d.Key()                 // "2026-03-10"
  back, err := dates.FromKey(key)
  // back.Key() == key, always, including DST transition dates

SEE ALSO:
  - eligibility.go: Request window evaluation on top of Date
*/
package dates

import (
	"fmt"
	"time"
)

// KeyLayout is the wire format for dates. No time-of-day component ever
// crosses the API boundary.
const KeyLayout = "2006-01-02"

// =============================================================================
// DATE - Noon-normalized calendar date
// =============================================================================

// Date is a calendar date with the time-of-day fixed to local noon.
// The zero Date is the zero time and reports IsZero.
type Date struct {
	t time.Time
}

// Normalize canonicalizes any timestamp to its calendar date at local noon.
func Normalize(t time.Time) Date {
	lt := t.Local()
	return Date{t: time.Date(lt.Year(), lt.Month(), lt.Day(), 12, 0, 0, 0, time.Local)}
}

// New constructs a Date directly from calendar components.
func New(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 12, 0, 0, 0, time.Local)}
}

// Today returns the current calendar date.
func Today() Date {
	return Normalize(time.Now())
}

// FromKey parses a YYYY-MM-DD key back through normalization.
func FromKey(key string) (Date, error) {
	t, err := time.ParseInLocation(KeyLayout, key, time.Local)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return Normalize(t), nil
}

// Key renders the YYYY-MM-DD wire format.
func (d Date) Key() string {
	return d.t.Format(KeyLayout)
}

// Time exposes the underlying noon timestamp.
func (d Date) Time() time.Time { return d.t }

func (d Date) IsZero() bool { return d.t.IsZero() }

// Comparison. Dates are noon-pinned so plain time comparison is exact.
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }

// Arithmetic is calendar-based, not wall-clock-hour based, so adding days
// across a DST transition still lands on noon of the expected day.
func (d Date) AddDays(n int) Date {
	return New(d.t.Year(), d.t.Month(), d.t.Day()+n)
}

func (d Date) AddMonths(n int) Date {
	return New(d.t.Year(), d.t.Month()+time.Month(n), d.t.Day())
}

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }

func (d Date) String() string { return d.Key() }

// =============================================================================
// MONTH - A (year, month) scope for allotment views
// =============================================================================

// Month identifies one calendar month, the unit of allotment fetches.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing d.
func MonthOf(d Date) Month {
	return Month{Year: d.Year(), Month: d.Month()}
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.ParseInLocation("2006-01", s, time.Local)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// First returns the first date of the month.
func (m Month) First() Date { return New(m.Year, m.Month, 1) }

// Last returns the last date of the month.
func (m Month) Last() Date { return New(m.Year, m.Month+1, 0) }

// Next returns the following month.
func (m Month) Next() Month {
	d := New(m.Year, m.Month+1, 1)
	return Month{Year: d.Year(), Month: d.Month()}
}

// Days enumerates every date in the month in order.
func (m Month) Days() []Date {
	var out []Date
	for d := m.First(); d.Month() == m.Month && d.Year() == m.Year; d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// YearsBetween returns whole calendar years elapsed from 'from' to 'to'.
// The partial year before the anniversary does not count.
func YearsBetween(from, to Date) int {
	if to.Before(from) {
		return 0
	}
	years := to.Year() - from.Year()
	anniversary := New(to.Year(), from.Month(), from.Day())
	if to.Before(anniversary) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
