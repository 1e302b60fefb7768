package scheduling

import (
	"time"

	"github.com/samber/lo"

	"github.com/conorfennell/recall/internal/domain"
)

// Streak counts consecutive learning days, ending today, that contain at
// least one complete session with at least one review. A day without such a
// session ends the count.
func Streak(sessions []domain.Session, events []domain.ReviewEvent, settings domain.Settings, now time.Time) int {
	reviewed := lo.SliceToMap(events, func(e domain.ReviewEvent) (string, struct{}) {
		return e.SessionID, struct{}{}
	})

	days := make(map[string]struct{})
	for _, s := range sessions {
		if s.EndedAt == nil || !s.State.IsComplete {
			continue
		}
		if _, ok := reviewed[s.ID]; !ok {
			continue
		}
		days[dayKey(DayStart(s.StartedAt, settings))] = struct{}{}
	}

	streak := 0
	day := DayStart(now, settings)
	for {
		if _, ok := days[dayKey(day)]; !ok {
			return streak
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}

func dayKey(boundary time.Time) string {
	return boundary.Format(time.DateOnly)
}

// CountStabilized counts eligible sentences that satisfy IsStabilized using
// each sentence's own review history.
func CountStabilized(sentences []domain.Sentence, events []domain.ReviewEvent) int {
	bySentence := lo.GroupBy(events, func(e domain.ReviewEvent) string {
		return e.SentenceID
	})
	return lo.CountBy(sentences, func(s domain.Sentence) bool {
		return s.IsEligible && IsStabilized(s, bySentence[s.ID])
	})
}
