package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/scheduling"
)

// ErrInvalidSchedulingState marks a sentence whose scheduling state was
// never initialised.
var ErrInvalidSchedulingState = errors.New("session: sentence has no scheduling state")

// Outcome is everything a rating produces. The caller persists Sentence and
// Event and applies the session-level effects.
type Outcome struct {
	Sentence domain.Sentence
	Event    domain.ReviewEvent
	// ShouldFreeze asks the caller to add the sentence to the frozen set.
	ShouldFreeze bool
	// ShouldUnfreeze asks the caller to drop the sentence from the frozen set.
	ShouldUnfreeze bool
	// ShouldReinsert asks the caller to show the sentence again later in
	// the current queue.
	ShouldReinsert bool
	// LockConsumed reports that a relearn lock from an earlier session was
	// satisfied by this review.
	LockConsumed bool
}

// HandleRating applies rating to sentence within session. Whether the
// sentence is frozen is read from the session's frozen set. Neither input is
// modified.
func HandleRating(sentence domain.Sentence, rating domain.Rating, session domain.Session, settings domain.Settings, now time.Time) (Outcome, error) {
	prev := sentence.Scheduling
	if prev.BoxLevel < 1 {
		return Outcome{}, fmt.Errorf("%w: %s", ErrInvalidSchedulingState, sentence.ID)
	}
	if !rating.IsValid() {
		return Outcome{}, fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(rating))
	}

	if rating == domain.Repeat {
		return Outcome{
			Sentence:       sentence.Clone(),
			Event:          domain.NewReviewEvent(sentence.ID, session.ID, rating, prev.DueAt, 0, prev.BoxLevel, now),
			ShouldFreeze:   true,
			ShouldReinsert: true,
		}, nil
	}

	frozen := rating == domain.Easy && session.IsFrozen(sentence.ID)
	result, err := scheduling.CalculateNextDue(rating, prev.BoxLevel, prev.DueAt, settings, now, frozen)
	if err != nil {
		return Outcome{}, err
	}

	lockConsumed := prev.RelearnLock && prev.LastReviewedAt != nil &&
		scheduling.IsNextSession(session.StartedAt, *prev.LastReviewedAt, settings)

	updated := sentence.Clone()
	st := &updated.Scheduling
	st.BoxLevel = result.BoxLevel
	st.DueAt = result.DueAt
	st.LastRating = &rating
	reviewedAt := now
	st.LastReviewedAt = &reviewedAt
	// A Miss re-arms the lock even when it consumed an older one.
	st.RelearnLock = result.RelearnLock
	updated.Stats.TotalReviews++
	if rating == domain.Miss {
		st.LapseCount++
		st.SuccessStreak = 0
		updated.Stats.TotalMisses++
	} else {
		st.SuccessStreak++
	}

	event := domain.NewReviewEvent(
		sentence.ID,
		session.ID,
		rating,
		result.DueAt,
		scheduling.IntervalDays(now, result.DueAt),
		result.BoxLevel,
		now,
	)

	return Outcome{
		Sentence:       updated,
		Event:          event,
		ShouldUnfreeze: rating == domain.Miss,
		ShouldReinsert: rating == domain.Miss,
		LockConsumed:   lockConsumed,
	}, nil
}
