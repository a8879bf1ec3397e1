package tool

import "time"

// RoundToDate truncates t to the start of its day
func RoundToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayBounds start of the day of t and the start of the next day
func DayBounds(t time.Time) (start, end time.Time) {
	start = RoundToDate(t)
	return start, start.AddDate(0, 0, 1)
}
