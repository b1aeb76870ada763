// Package calendar implements date-only arithmetic on ISO YYYY-MM-DD strings.
package calendar

import (
	"fmt"
	"regexp"
	"time"

	"github.com/CristhianDaza/finControl/internal/model"
)

// Layout is the ISO calendar-date layout.
const Layout = "2006-01-02"

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Parse parses a strict YYYY-MM-DD string into UTC midnight.
func Parse(s string) (time.Time, error) {
	if !isoDate.MatchString(s) {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// Valid reports whether s is a real calendar date in YYYY-MM-DD form.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Format renders the calendar date of t (in t's location).
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Today returns the UTC calendar date of now.
func Today(now time.Time) string {
	return Format(now.UTC())
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonths adds n calendar months, clamping the day to the last day of the
// target month (Jan 31 + 1 month is Feb 28 or 29). The time of day and
// location are preserved.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	total := int(m) - 1 + n
	ny := y + total/12
	nm := total % 12
	if nm < 0 {
		nm += 12
		ny--
	}
	month := time.Month(nm + 1)
	if last := DaysIn(ny, month); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(ny, month, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// AddYears adds n calendar years with the same clamping as AddMonths.
func AddYears(t time.Time, n int) time.Time {
	return AddMonths(t, 12*n)
}

// NextFrom returns the occurrence following iso for the given frequency.
// Unknown frequencies follow the monthly rule.
func NextFrom(freq model.Frequency, iso string) (string, error) {
	t, err := Parse(iso)
	if err != nil {
		return "", err
	}
	switch freq {
	case model.Weekly:
		t = t.AddDate(0, 0, 7)
	case model.Biweekly:
		t = t.AddDate(0, 0, 14)
	case model.Yearly:
		t = AddYears(t, 1)
	default:
		t = AddMonths(t, 1)
	}
	return Format(t), nil
}

// MonthKey returns "YYYY-MM".
func MonthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// RangeKey identifies an arbitrary date range, "YYYY-MM-DD..YYYY-MM-DD".
func RangeKey(from, to string) string {
	return from + ".." + to
}

// MonthRange returns the first and last ISO dates of a month.
func MonthRange(year int, month time.Month) (from, to string) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(year, month, DaysIn(year, month), 0, 0, 0, 0, time.UTC)
	return Format(first), Format(last)
}

// NormalizeOr returns iso when it is a valid date and fallback otherwise.
func NormalizeOr(iso, fallback string) string {
	if Valid(iso) {
		return iso
	}
	return fallback
}
