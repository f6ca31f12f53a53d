// Package timeutil provides calendar helpers for result declarations.
// The examination portal publishes declaration dates with month granularity,
// so comparisons here work on YearMonth values.
package timeutil

import (
	"fmt"
	"time"
)

// YearMonth is a calendar month, the finest granularity the portal
// reports for a result declaration.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewYearMonth builds a YearMonth, validating the month range.
func NewYearMonth(year, month int) (YearMonth, error) {
	if year < 1 {
		return YearMonth{}, fmt.Errorf("invalid year %d", year)
	}
	if month < 1 || month > 12 {
		return YearMonth{}, fmt.Errorf("invalid month %d", month)
	}
	return YearMonth{Year: year, Month: month}, nil
}

// Compare returns -1, 0 or +1 when ym is before, equal to or after other.
func (ym YearMonth) Compare(other YearMonth) int {
	a, b := ym.index(), other.index()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// After reports whether ym is strictly later than other.
func (ym YearMonth) After(other YearMonth) bool {
	return ym.Compare(other) > 0
}

// String formats the month as "Mar 2024".
func (ym YearMonth) String() string {
	if ym.Month < 1 || ym.Month > 12 {
		return fmt.Sprintf("%02d/%d", ym.Month, ym.Year)
	}
	return fmt.Sprintf("%s %d", time.Month(ym.Month).String()[:3], ym.Year)
}

// index maps the value onto a single month counter (year*12 + month-1).
func (ym YearMonth) index() int {
	return ym.Year*12 + (ym.Month - 1)
}
