package timeseries

import (
	"fmt"
	"strings"
	"time"
)

// Granularity selects the bucket width.
type Granularity string

const (
	// Day buckets start at local midnight.
	Day Granularity = "Day"
	// Week buckets start on Monday at local midnight.
	Week Granularity = "Week"
	// Month buckets start on the first day of the month.
	Month Granularity = "Month"
)

// ParseGranularity accepts "day", "Week", "MONTH" and so on.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "d":
		return Day, nil
	case "week", "w":
		return Week, nil
	case "month", "m":
		return Month, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// Wall converts t to loc and returns the same wall clock labelled as UTC.
// Everything downstream of Wall does calendar arithmetic on naive local time.
func Wall(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

// DayStart floors a wall-clock time to midnight.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart floors a wall-clock time to Monday midnight.
func WeekStart(t time.Time) time.Time {
	d := DayStart(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}

// MonthStart floors a wall-clock time to the first of the month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b (both wall-clock midnights).
func DaysBetween(a, b time.Time) int {
	return int(DayStart(b).Sub(DayStart(a)).Hours() / 24)
}

// Floor aligns a wall-clock time to the start of its bucket.
func (g Granularity) Floor(t time.Time) time.Time {
	switch g {
	case Week:
		return WeekStart(t)
	case Month:
		return MonthStart(t)
	default:
		return DayStart(t)
	}
}

// Next returns the start of the bucket following start.
func (g Granularity) Next(start time.Time) time.Time {
	switch g {
	case Week:
		return start.AddDate(0, 0, 7)
	case Month:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}
