package scheduling

import (
	"testing"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

func sentenceDue(id string, due time.Time, eligible, locked bool) domain.Sentence {
	return domain.Sentence{
		ID:         id,
		IsEligible: eligible,
		Scheduling: domain.SchedulingState{BoxLevel: 1, DueAt: due, RelearnLock: locked},
	}
}

func ids(sentences []domain.Sentence) []string {
	out := make([]string, len(sentences))
	for i, s := range sentences {
		out[i] = s.ID
	}
	return out
}

func TestDueNow(t *testing.T) {
	now := at("2024-01-15T10:00")
	sentences := []domain.Sentence{
		sentenceDue("past", now.Add(-time.Hour), true, false),
		sentenceDue("exact", now, true, false),
		sentenceDue("future", now.Add(time.Hour), true, false),
		sentenceDue("locked-future", now.Add(48*time.Hour), true, true),
		sentenceDue("ineligible", now.Add(-time.Hour), false, false),
		sentenceDue("ineligible-locked", now.Add(time.Hour), false, true),
	}
	got := ids(DueNow(sentences, now))
	want := []string{"past", "exact", "locked-future"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, but got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, but got %v", want, got)
		}
	}
}

func TestDueToday(t *testing.T) {
	settings := utcSettings()
	now := at("2024-01-15T10:00")
	sentences := []domain.Sentence{
		sentenceDue("past", now.Add(-time.Hour), true, false),
		sentenceDue("now", now, true, false),
		sentenceDue("tonight", at("2024-01-15T22:00"), true, false),
		sentenceDue("before-reset", at("2024-01-16T03:59"), true, false),
		sentenceDue("at-reset", at("2024-01-16T04:00"), true, false),
		sentenceDue("ineligible", at("2024-01-15T22:00"), false, false),
	}
	got := ids(DueToday(sentences, settings, now))
	if len(got) != 2 || got[0] != "tonight" || got[1] != "before-reset" {
		t.Errorf("Expected [tonight before-reset], but got %v", got)
	}
}
