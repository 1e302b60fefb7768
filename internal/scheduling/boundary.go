package scheduling

import (
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// resetOn returns the daily reset boundary on the calendar day of t, in the
// settings timezone.
func resetOn(t time.Time, settings domain.Settings) time.Time {
	loc := settings.Location()
	hour, minute := settings.ResetClock()
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), hour, minute, 0, 0, loc)
}

// NextResetAfter returns the first reset boundary strictly after now.
func NextResetAfter(now time.Time, settings domain.Settings) time.Time {
	b := resetOn(now, settings)
	if !b.After(now) {
		b = b.AddDate(0, 0, 1)
	}
	return b
}

// DayStart returns the most recent reset boundary at or before t: the start
// of the learning day that contains t.
func DayStart(t time.Time, settings domain.Settings) time.Time {
	b := resetOn(t, settings)
	if b.After(t) {
		b = b.AddDate(0, 0, -1)
	}
	return b
}

// qualifyingBoundary is the first reset boundary a session must start at or
// after to count as "the next session" relative to a rating made at ratedAt.
func qualifyingBoundary(ratedAt time.Time, settings domain.Settings) time.Time {
	b := resetOn(ratedAt, settings)
	if ratedAt.Before(b) {
		return b
	}
	return b.AddDate(0, 0, 1)
}
