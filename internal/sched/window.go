package sched

import "time"

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window. End is excluded.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DayAheadWindow covers tomorrow's calendar day in now's location:
// [midnight(now)+24h, midnight(now)+48h).
func DayAheadWindow(now time.Time) Window {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return Window{Start: midnight.AddDate(0, 0, 1), End: midnight.AddDate(0, 0, 2)}
}

// FinalCallWindow covers the next 60-120 minutes: [now+60m, now+120m).
func FinalCallWindow(now time.Time) Window {
	return Window{Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)}
}

// CutoffBefore returns the instant before which records of the given age
// qualify for cleanup.
func CutoffBefore(now time.Time, age time.Duration) time.Time {
	return now.Add(-age)
}
