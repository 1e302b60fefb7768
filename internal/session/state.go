package session

import (
	"slices"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// StateUpdate is a partial SessionState. Nil fields are left unchanged.
type StateUpdate struct {
	CurrentItemID      *string
	QueuePosition      *int
	ElapsedTimeSeconds *float64
	FrozenSentenceIDs  *[]string
}

// UpdateState merges u into a copy of s.State. No other field is derived.
func UpdateState(s domain.Session, u StateUpdate) domain.Session {
	out := s.Clone()
	if u.CurrentItemID != nil {
		out.State.CurrentItemID = *u.CurrentItemID
	}
	if u.QueuePosition != nil {
		out.State.QueuePosition = *u.QueuePosition
	}
	if u.ElapsedTimeSeconds != nil {
		out.State.ElapsedTimeSeconds = *u.ElapsedTimeSeconds
	}
	if u.FrozenSentenceIDs != nil {
		out.State.FrozenSentenceIDs = slices.Clone(*u.FrozenSentenceIDs)
	}
	return out
}

// Freeze adds sentenceID to the frozen set. added is false when the
// sentence was already frozen, so the caller plays the cue only once.
func Freeze(s domain.Session, sentenceID string) (out domain.Session, added bool) {
	if s.IsFrozen(sentenceID) {
		return s.Clone(), false
	}
	ids := append(slices.Clone(s.State.FrozenSentenceIDs), sentenceID)
	return UpdateState(s, StateUpdate{FrozenSentenceIDs: &ids}), true
}

// Unfreeze removes sentenceID from the frozen set.
func Unfreeze(s domain.Session, sentenceID string) domain.Session {
	ids := slices.DeleteFunc(slices.Clone(s.State.FrozenSentenceIDs), func(id string) bool {
		return id == sentenceID
	})
	return UpdateState(s, StateUpdate{FrozenSentenceIDs: &ids})
}

// End closes the session at now. The frozen set is discarded.
func End(s domain.Session, now time.Time) domain.Session {
	out := UpdateState(s, StateUpdate{FrozenSentenceIDs: &[]string{}})
	ended := now
	out.EndedAt = &ended
	out.State.IsComplete = true
	return out
}

// IsDueQueueComplete reports whether position has run past the due queue.
func IsDueQueueComplete(dueQueueLength, currentPosition int) bool {
	return currentPosition >= dueQueueLength
}

// Ptr returns a pointer to v, for building a StateUpdate.
func Ptr[T any](v T) *T {
	return &v
}
