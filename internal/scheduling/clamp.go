package scheduling

import (
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// IsNextSession reports whether a session starting at sessionStartedAt is
// the first session after the daily reset that follows lastRatingAt.
func IsNextSession(sessionStartedAt, lastRatingAt time.Time, settings domain.Settings) bool {
	return !sessionStartedAt.Before(qualifyingBoundary(lastRatingAt, settings))
}

// ShouldAppearInSession applies the relearn clamp: a locked sentence comes
// back only in a session that starts after the next reset following its
// last review. Unlocked sentences are never admitted by this rule.
func ShouldAppearInSession(sentence domain.Sentence, sessionStartedAt time.Time, settings domain.Settings) bool {
	st := sentence.Scheduling
	if !st.RelearnLock {
		return false
	}
	if st.LastReviewedAt == nil {
		return true
	}
	return IsNextSession(sessionStartedAt, *st.LastReviewedAt, settings)
}

// ClearRelearnLock returns a copy of sentence with the lock removed.
func ClearRelearnLock(sentence domain.Sentence) domain.Sentence {
	out := sentence.Clone()
	out.Scheduling.RelearnLock = false
	return out
}
