package database

import "time"

// MonthKey returns t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// CurrentMonthKey returns the current month as YYYY-MM.
func CurrentMonthKey() string {
	return MonthKey(time.Now())
}

// FormatMonthDisplay formats a month key for display: "October 2026".
// Keys that do not parse are returned unchanged.
func FormatMonthDisplay(monthKey string) string {
	t, err := time.Parse("2006-01", monthKey)
	if err != nil {
		return monthKey
	}
	return t.Format("January 2006")
}
