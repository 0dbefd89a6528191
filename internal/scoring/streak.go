package scoring

import "time"

// Streak is a diner's visit streak state. LastVisit is a calendar date as
// returned by Day, or nil before the first visit.
type Streak struct {
	Current   int
	Longest   int
	LastVisit *time.Time
}

// StreakOutcome is the result of applying one visit to a Streak.
type StreakOutcome struct {
	Streak Streak
	Bonus  int64
}

// AdvanceStreak applies a visit on visitDay (a calendar date from Day).
//
//   - first visit: streak starts at 1
//   - same day as the last visit: unchanged, no bonus
//   - exactly one day later: +1, bonus when the new streak is a multiple of 3
//   - more than one day later: streak restarts at 1
//
// A visit dated before the last visit leaves the streak untouched.
func AdvanceStreak(s Streak, visitDay time.Time) StreakOutcome {
	out := StreakOutcome{Streak: s}

	switch {
	case s.LastVisit == nil:
		out.Streak.Current = 1
		out.Streak.LastVisit = &visitDay
	default:
		gap := DaysBetween(*s.LastVisit, visitDay)
		switch {
		case gap <= 0:
			// same day or backdated
		case gap == 1:
			out.Streak.Current = s.Current + 1
			out.Streak.LastVisit = &visitDay
			if out.Streak.Current%StreakBonusEvery == 0 {
				out.Bonus = StreakBonusPoints
			}
		default:
			out.Streak.Current = 1
			out.Streak.LastVisit = &visitDay
		}
	}

	if out.Streak.Current > out.Streak.Longest {
		out.Streak.Longest = out.Streak.Current
	}
	return out
}
