// Package queue assembles the ordered lists of sentences presented in a
// practice session.
package queue

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/scheduling"
)

// RecentMissDays is how far back a Miss promotes a sentence to the front of
// the extra queue.
const RecentMissDays = 7

// Reinsertion offsets: a re-queued item comes back after 2 to 4 others.
const (
	minReinsertOffset = 2
	maxReinsertOffset = 4
)

// Item is one entry of a session queue.
type Item struct {
	Sentence domain.Sentence
	Position int
}

// BuildDue returns the due queue for session: eligible sentences that are
// past due, plus relearn-locked sentences admitted by the session clamp.
// Locked sentences come first, then ascending due date.
func BuildDue(sentences []domain.Sentence, session domain.Session, settings domain.Settings, now time.Time) []Item {
	due := lo.Filter(sentences, func(s domain.Sentence, _ int) bool {
		if !s.IsEligible {
			return false
		}
		if !s.Scheduling.DueAt.After(now) {
			return true
		}
		return s.Scheduling.RelearnLock && scheduling.ShouldAppearInSession(s, session.StartedAt, settings)
	})

	slices.SortStableFunc(due, func(a, b domain.Sentence) int {
		if a.Scheduling.RelearnLock != b.Scheduling.RelearnLock {
			if a.Scheduling.RelearnLock {
				return -1
			}
			return 1
		}
		return a.Scheduling.DueAt.Compare(b.Scheduling.DueAt)
	})
	return toItems(due)
}

// BuildExtra returns the fill queue used after the due queue runs out.
// Sentences missed within the last RecentMissDays (or earlier in this
// session) come first; each group is shuffled independently.
func BuildExtra(sentences []domain.Sentence, sessionID string, events []domain.ReviewEvent, settings domain.Settings, now time.Time, rng *rand.Rand) []Item {
	cutoff := now.In(settings.Location()).AddDate(0, 0, -RecentMissDays)
	missed := make(map[string]struct{})
	for _, e := range events {
		if e.Rating != domain.Miss {
			continue
		}
		if e.SessionID == sessionID || !e.Timestamp.Before(cutoff) {
			missed[e.SentenceID] = struct{}{}
		}
	}

	var recent, other []domain.Sentence
	for _, s := range sentences {
		if !s.IsEligible {
			continue
		}
		if _, ok := missed[s.ID]; ok {
			recent = append(recent, s)
		} else {
			other = append(other, s)
		}
	}
	rng.Shuffle(len(recent), func(i, j int) { recent[i], recent[j] = recent[j], recent[i] })
	rng.Shuffle(len(other), func(i, j int) { other[i], other[j] = other[j], other[i] })

	return toItems(append(recent, other...))
}

// Reinsert moves item 2 to 4 places past currentPosition so it comes back
// later in the same queue. Any existing entry for the same sentence is
// removed first; the insertion point is clamped to the end of the queue.
// Positions are renumbered.
func Reinsert(q []Item, item Item, currentPosition int, rng *rand.Rand) []Item {
	offset := minReinsertOffset + rng.IntN(maxReinsertOffset-minReinsertOffset+1)

	out := make([]Item, 0, len(q)+1)
	for _, it := range q {
		if it.Sentence.ID != item.Sentence.ID {
			out = append(out, it)
		}
	}
	at := min(max(currentPosition+offset, 0), len(out))
	out = slices.Insert(out, at, item)
	for i := range out {
		out[i].Position = i
	}
	return out
}

// Remaining returns the items at or after position.
func Remaining(q []Item, position int) []Item {
	if position >= len(q) {
		return nil
	}
	return q[max(position, 0):]
}

func toItems(sentences []domain.Sentence) []Item {
	return lo.Map(sentences, func(s domain.Sentence, i int) Item {
		return Item{Sentence: s, Position: i}
	})
}
