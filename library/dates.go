package library

import (
	"fmt"
	"time"
)

// Dates are handled at day granularity throughout: loans, due dates and
// fines never care about the time of day. On disk a date is `YYYY-MM-DD`
// and an unset date is the literal token `null`.

const (
	dateLayout = "2006-01-02"
	nullDate   = "null"
)

// dateOnly truncates t to midnight UTC so date arithmetic is exact.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// formatDate serializes t, using the null token for the zero value.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return nullDate
	}
	return t.Format(dateLayout)
}

// parseDate is the inverse of formatDate: the null token yields the zero
// value.
func parseDate(s string) (time.Time, error) {
	if s == nullDate {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return dateOnly(t), nil
}

// daysBetween returns the number of whole days from b to a; positive when a
// is later than b.
func daysBetween(a, b time.Time) int {
	return int(dateOnly(a).Sub(dateOnly(b)).Hours() / 24)
}
