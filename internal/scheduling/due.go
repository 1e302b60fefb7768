package scheduling

import (
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/recall/internal/domain"
)

// DueNow returns eligible sentences whose due date has passed or that carry a
// relearn lock. It ignores the session clamp and is meant for badge counts;
// queue building applies the clamp itself.
func DueNow(sentences []domain.Sentence, now time.Time) []domain.Sentence {
	return lo.Filter(sentences, func(s domain.Sentence, _ int) bool {
		if !s.IsEligible {
			return false
		}
		return !s.Scheduling.DueAt.After(now) || s.Scheduling.RelearnLock
	})
}

// DueToday returns eligible sentences that fall due after now but before the
// next daily reset.
func DueToday(sentences []domain.Sentence, settings domain.Settings, now time.Time) []domain.Sentence {
	nextReset := NextResetAfter(now, settings)
	return lo.Filter(sentences, func(s domain.Sentence, _ int) bool {
		if !s.IsEligible {
			return false
		}
		due := s.Scheduling.DueAt
		return due.After(now) && due.Before(nextReset)
	})
}
