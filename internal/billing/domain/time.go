package billing

import (
	"fmt"
	"time"
)

// DateLayout is the ISO-8601 calendar date layout used in snapshots and CSV sources.
const DateLayout = "2006-01-02"

// Date truncates t to a UTC calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ToDate drops the clock part of t, keeping its calendar date.
func ToDate(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// ParseDate parses an ISO-8601 calendar date.
func ParseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return parsed, nil
}

// FormatDate renders t as an ISO-8601 calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Period is an inclusive calendar date range.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod validates and constructs a period.
func NewPeriod(start, end time.Time) (Period, error) {
	start, end = ToDate(start), ToDate(end)
	if end.Before(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// FullYear returns the period covering a calendar year.
func FullYear(year int) Period {
	return Period{Start: Date(year, time.January, 1), End: Date(year, time.December, 31)}
}

// Contains reports whether date falls within the period, both ends inclusive.
func (p Period) Contains(date time.Time) bool {
	date = ToDate(date)
	return !date.Before(p.Start) && !date.After(p.End)
}

func (p Period) String() string {
	return FormatDate(p.Start) + ".." + FormatDate(p.End)
}
