package scheduling

import (
	"testing"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

func completedSession(id string, started time.Time) domain.Session {
	ended := started.Add(10 * time.Minute)
	return domain.Session{
		ID:        id,
		StartedAt: started,
		EndedAt:   &ended,
		State:     domain.SessionState{IsComplete: true},
	}
}

func reviewFor(sessionID string) domain.ReviewEvent {
	return domain.ReviewEvent{SessionID: sessionID, Rating: domain.Easy}
}

func TestStreak(t *testing.T) {
	settings := utcSettings()
	now := at("2024-01-15T10:00")

	t.Run("no sessions", func(t *testing.T) {
		if got := Streak(nil, nil, settings, now); got != 0 {
			t.Errorf("Expected 0, got %d", got)
		}
	})

	t.Run("sessions without reviews", func(t *testing.T) {
		sessions := []domain.Session{completedSession("a", now)}
		if got := Streak(sessions, nil, settings, now); got != 0 {
			t.Errorf("Expected 0, got %d", got)
		}
	})

	t.Run("three consecutive days", func(t *testing.T) {
		sessions := []domain.Session{
			completedSession("a", now.AddDate(0, 0, -2)),
			completedSession("b", now.AddDate(0, 0, -1)),
			completedSession("c", now),
		}
		events := []domain.ReviewEvent{reviewFor("a"), reviewFor("b"), reviewFor("c")}
		if got := Streak(sessions, events, settings, now); got != 3 {
			t.Errorf("Expected 3, got %d", got)
		}
	})

	t.Run("gap stops the count", func(t *testing.T) {
		sessions := []domain.Session{
			completedSession("a", now.AddDate(0, 0, -3)),
			completedSession("b", now.AddDate(0, 0, -1)),
			completedSession("c", now),
		}
		events := []domain.ReviewEvent{reviewFor("a"), reviewFor("b"), reviewFor("c")}
		if got := Streak(sessions, events, settings, now); got != 2 {
			t.Errorf("Expected 2, got %d", got)
		}
	})

	t.Run("nothing today", func(t *testing.T) {
		sessions := []domain.Session{completedSession("a", now.AddDate(0, 0, -1))}
		if got := Streak(sessions, []domain.ReviewEvent{reviewFor("a")}, settings, now); got != 0 {
			t.Errorf("Expected 0, got %d", got)
		}
	})

	t.Run("early morning counts toward previous day", func(t *testing.T) {
		// 02:00 on the 15th belongs to the learning day that began 04:00 on the 14th.
		sessions := []domain.Session{
			completedSession("a", at("2024-01-15T02:00")),
			completedSession("b", at("2024-01-15T09:00")),
		}
		events := []domain.ReviewEvent{reviewFor("a"), reviewFor("b")}
		if got := Streak(sessions, events, settings, now); got != 2 {
			t.Errorf("Expected 2, got %d", got)
		}
	})

	t.Run("incomplete session ignored", func(t *testing.T) {
		s := completedSession("a", now)
		s.State.IsComplete = false
		if got := Streak([]domain.Session{s}, []domain.ReviewEvent{reviewFor("a")}, settings, now); got != 0 {
			t.Errorf("Expected 0, got %d", got)
		}
	})

	t.Run("running session ignored", func(t *testing.T) {
		s := completedSession("a", now)
		s.EndedAt = nil
		if got := Streak([]domain.Session{s}, []domain.ReviewEvent{reviewFor("a")}, settings, now); got != 0 {
			t.Errorf("Expected 0, got %d", got)
		}
	})
}

func TestCountStabilized(t *testing.T) {
	ts := at("2024-01-15T10:00")
	sentences := []domain.Sentence{
		{ID: "a", IsEligible: true, Scheduling: domain.SchedulingState{BoxLevel: 4}},
		{ID: "b", IsEligible: true, Scheduling: domain.SchedulingState{BoxLevel: 5}},
		{ID: "c", IsEligible: true, Scheduling: domain.SchedulingState{BoxLevel: 3}},
		{ID: "d", IsEligible: false, Scheduling: domain.SchedulingState{BoxLevel: 6}},
	}
	events := []domain.ReviewEvent{
		{SentenceID: "a", Rating: domain.Easy, Timestamp: ts},
		{SentenceID: "b", Rating: domain.Miss, Timestamp: ts},
		{SentenceID: "b", Rating: domain.Easy, Timestamp: ts.Add(-time.Hour)},
	}
	if got := CountStabilized(sentences, events); got != 1 {
		t.Errorf("Expected 1 stabilized sentence, got %d", got)
	}
}
