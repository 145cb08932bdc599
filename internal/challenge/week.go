package challenge

import "time"

// WeekOf derives a week identifier from the day of year plus an offset for
// the weekday January 1st falls on, combined with the year so identifiers
// stay monotonic across year rollover.
//
// It is stable for repeated calls within the same week and changes roughly
// weekly; exact calendar-week boundary semantics are not load-bearing for the
// weekly delivery cap.
func WeekOf(t time.Time) int {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	week := (t.YearDay() - 1 + int(jan1.Weekday())) / 7
	return t.Year()*100 + week
}
