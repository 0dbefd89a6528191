package scoring

import "time"

// DefaultPeriodDays is the length of a leaderboard period.
const DefaultPeriodDays = 7

// Day returns the calendar date of t as observed in loc, expressed as
// midnight UTC so that dates compare and subtract exactly.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b. Both must be
// values produced by Day.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// Window is an inclusive range of calendar dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// NextWindow returns the period that follows a period ending on prevEnd.
// With no previous period the window starts today.
func NextWindow(prevEnd *time.Time, today time.Time, days int) Window {
	if days <= 0 {
		days = DefaultPeriodDays
	}
	start := today
	if prevEnd != nil {
		start = prevEnd.AddDate(0, 0, 1)
	}
	return Window{Start: start, End: start.AddDate(0, 0, days-1)}
}

// Contains reports whether day lies within the window.
func (w Window) Contains(day time.Time) bool {
	return !day.Before(w.Start) && !day.After(w.End)
}

// IsOver reports whether the window ended strictly before day.
func (w Window) IsOver(day time.Time) bool {
	return w.End.Before(day)
}

// Bounds returns the half-open instant range [from, to) covered by the
// window's dates in loc.
func (w Window) Bounds(loc *time.Location) (from, to time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	from = time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, loc)
	end := w.End.AddDate(0, 0, 1)
	to = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	return from, to
}
