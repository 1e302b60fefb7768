package practice

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/queue"
)

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func testSettings() domain.Settings {
	return domain.Settings{
		DailyResetTime:  "04:00",
		Timezone:        "UTC",
		BoxIntervals:    []int{1, 2, 4, 8, 16, 30},
		ExtraSeconds:    2,
		CurrentLanguage: "hu",
	}
}

// dueSentence is eligible, in box, and due hoursAgo hours before t0.
func dueSentence(id string, box, hoursAgo int) domain.Sentence {
	s := domain.NewSentence("hu", "English "+id, id+".mp3", t0.Add(-30*24*time.Hour), domain.WithID(id), domain.WithAudioDuration(1))
	s.IsEligible = true
	s.Scheduling.BoxLevel = box
	s.Scheduling.DueAt = t0.Add(-time.Duration(hoursAgo) * time.Hour)
	return s
}

func newTestService(store Store) *Service {
	return NewService(store, WithRand(rand.New(rand.NewPCG(1, 2))))
}

func currentID(t *testing.T, v View) string {
	t.Helper()
	if v.Current == nil {
		t.Fatalf("no current item, view = %+v", v)
	}
	return v.Current.ID
}

func TestStartBuildsDueQueueAndSkipsMissingAudio(t *testing.T) {
	ctx := context.Background()
	notDue := dueSentence("d", 1, -24)
	store := newMemStore(testSettings(), dueSentence("a", 1, 3), dueSentence("b", 1, 2), dueSentence("c", 1, 1), notDue)
	store.noAudio["b"] = true
	svc := newTestService(store)

	v, err := svc.Start(ctx, domain.DueOnly, 10, t0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if currentID(t, v) != "a" || v.QueueLength != 3 || v.Position != 0 {
		t.Fatalf("start view = %+v", v)
	}

	res, err := svc.Rate(ctx, v.Session.ID, "a", domain.Next, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Rate(a): %v", err)
	}
	if currentID(t, res.View) != "c" || res.View.Position != 2 {
		t.Errorf("expected b to be skipped, view = %+v", res.View)
	}

	res, err = svc.Rate(ctx, v.Session.ID, "c", domain.Next, t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Rate(c): %v", err)
	}
	if !res.View.Done || res.View.Current != nil {
		t.Errorf("expected session to end, view = %+v", res.View)
	}
	stored := store.storedSession(v.Session.ID)
	if stored.EndedAt == nil || !stored.State.IsComplete {
		t.Errorf("stored session not ended: %+v", stored)
	}
	if len(store.events) != 2 {
		t.Errorf("got %d review events, want 2", len(store.events))
	}
}

func TestRateRejectsDuplicateAndForeignRatings(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testSettings(), dueSentence("a", 1, 2), dueSentence("b", 1, 1))
	svc := newTestService(store)
	v, err := svc.Start(ctx, domain.DueOnly, 10, t0)
	if err != nil {
		t.Fatal(err)
	}
	id := v.Session.ID

	if _, err := svc.Rate(ctx, id, "b", domain.Next, t0); !errors.Is(err, ErrRatingNotAccepted) {
		t.Errorf("rating a queued but not current item: err = %v", err)
	}
	if _, err := svc.Rate(ctx, id, "a", domain.Next, t0); err != nil {
		t.Fatalf("Rate(a): %v", err)
	}
	if _, err := svc.Rate(ctx, id, "a", domain.Next, t0); !errors.Is(err, ErrRatingNotAccepted) {
		t.Errorf("duplicate rating: err = %v, want ErrRatingNotAccepted", err)
	}
	if _, err := svc.Rate(ctx, id, "b", domain.Rating(9), t0); !errors.Is(err, domain.ErrInvalidRating) {
		t.Errorf("invalid rating: err = %v, want ErrInvalidRating", err)
	}
	if _, err := svc.Rate(ctx, id, "b", domain.Easy, t0); err != nil {
		t.Errorf("rating after an invalid one should be accepted: %v", err)
	}
	if len(store.events) != 2 {
		t.Errorf("got %d review events, want 2", len(store.events))
	}
	if _, err := svc.Rate(ctx, id, "b", domain.Easy, t0); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("rating an ended session: err = %v, want ErrSessionEnded", err)
	}
}

func TestRateFailureLeavesItemRateable(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testSettings(), dueSentence("a", 2, 3), dueSentence("b", 1, 2))
	svc := newTestService(store)

	v, err := svc.Start(ctx, domain.DueOnly, 10, t0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	diskFull := errors.New("disk full")
	store.reviewErr = diskFull

	if _, err := svc.Rate(ctx, v.Session.ID, "a", domain.Easy, t0.Add(time.Minute)); !errors.Is(err, diskFull) {
		t.Fatalf("Rate err = %v, want %v", err, diskFull)
	}
	if got := store.sentence("a"); got.Scheduling.BoxLevel != 2 || got.Stats.TotalReviews != 0 {
		t.Errorf("failed rating changed the stored sentence: %+v", got)
	}
	if events, _ := store.ReviewEvents(ctx, "a"); len(events) != 0 {
		t.Errorf("failed rating stored events: %+v", events)
	}
	cur, err := svc.Current(v.Session.ID)
	if err != nil || currentID(t, cur) != "a" {
		t.Fatalf("Current after failure = %+v, %v", cur, err)
	}

	res, err := svc.Rate(ctx, v.Session.ID, "a", domain.Easy, t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("retry Rate: %v", err)
	}
	if res.Event.BoxLevelAfter != 3 || currentID(t, res.View) != "b" {
		t.Errorf("retry result = %+v", res)
	}
	if events, _ := store.ReviewEvents(ctx, "a"); len(events) != 1 {
		t.Errorf("got %d events after retry, want 1", len(events))
	}
}

func TestMissReinsertsLaterInQueue(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testSettings(),
		dueSentence("a", 3, 5), dueSentence("b", 1, 4), dueSentence("c", 1, 3),
		dueSentence("d", 1, 2), dueSentence("e", 1, 1))
	svc := newTestService(store)
	v, err := svc.Start(ctx, domain.DueOnly, 10, t0)
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Rate(ctx, v.Session.ID, "a", domain.Miss, t0)
	if err != nil {
		t.Fatal(err)
	}
	if currentID(t, res.View) != "b" || res.View.Position != 0 || res.View.QueueLength != 5 {
		t.Errorf("after Miss view = %+v", res.View)
	}

	r, _ := svc.lookup(v.Session.ID)
	idx := slices.IndexFunc(r.current, func(it queue.Item) bool { return it.Sentence.ID == "a" })
	if idx < 2 || idx > 4 {
		t.Errorf("missed item reinserted at %d, want 2..4", idx)
	}
	for i, it := range r.current {
		if it.Position != i {
			t.Errorf("item %s has position %d at index %d", it.Sentence.ID, it.Position, i)
		}
	}

	a := store.sentence("a")
	if a.Scheduling.BoxLevel != 1 || !a.Scheduling.RelearnLock || a.Scheduling.LapseCount != 1 {
		t.Errorf("stored sentence after Miss = %+v", a.Scheduling)
	}
	if res.Event.Rating != domain.Miss || res.Event.BoxLevelAfter != 1 {
		t.Errorf("event = %+v", res.Event)
	}
}

func TestRepeatThenEasyDoesNotPromote(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testSettings(), dueSentence("a", 2, 2), dueSentence("b", 1, 1))
	svc := newTestService(store)
	v, err := svc.Start(ctx, domain.DueOnly, 10, t0)
	if err != nil {
		t.Fatal(err)
	}
	id := v.Session.ID

	res, err := svc.Rate(ctx, id, "a", domain.Repeat, t0)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FrozenCue || !res.View.Session.IsFrozen("a") {
		t.Errorf("first Repeat should freeze with a cue: %+v", res)
	}
	if currentID(t, res.View) != "b" {
		t.Fatalf("current = %s, want b", currentID(t, res.View))
	}
	if res, err = svc.Rate(ctx, id, "b", domain.Next, t0); err != nil {
		t.Fatal(err)
	}
	if currentID(t, res.View) != "a" {
		t.Fatalf("current = %s, want a", currentID(t, res.View))
	}

	if res, err = svc.Rate(ctx, id, "a", domain.Repeat, t0); err != nil {
		t.Fatal(err)
	}
	if res.FrozenCue {
		t.Error("second Repeat must not cue again")
	}
	if currentID(t, res.View) != "a" {
		t.Fatalf("current = %s, want a", currentID(t, res.View))
	}

	now := t0.Add(time.Minute)
	if res, err = svc.Rate(ctx, id, "a", domain.Easy, now); err != nil {
		t.Fatal(err)
	}
	a := store.sentence("a")
	if a.Scheduling.BoxLevel != 2 {
		t.Errorf("frozen Easy promoted to box %d, want 2", a.Scheduling.BoxLevel)
	}
	if want := now.AddDate(0, 0, 2); !a.Scheduling.DueAt.Equal(want) {
		t.Errorf("due_at = %v, want %v", a.Scheduling.DueAt, want)
	}
	if !res.View.Done {
		t.Fatalf("session should have ended: %+v", res.View)
	}
	if frozen := store.storedSession(id).State.FrozenSentenceIDs; len(frozen) != 0 {
		t.Errorf("frozen set survived session end: %v", frozen)
	}
}

func TestDueThenExtraSwitchesQueues(t *testing.T) {
	ctx := context.Background()
	later := dueSentence("b", 2, -72)
	inbox := dueSentence("c", 1, 1)
	inbox.IsEligible = false
	store := newMemStore(testSettings(), dueSentence("a", 1, 1), later, inbox)
	svc := newTestService(store)

	v, err := svc.Start(ctx, domain.DueThenExtra, 10, t0)
	if err != nil {
		t.Fatal(err)
	}
	if currentID(t, v) != "a" || v.InExtra {
		t.Fatalf("start view = %+v", v)
	}

	res, err := svc.Rate(ctx, v.Session.ID, "a", domain.Easy, t0.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !res.EnteredExtra || !res.View.InExtra || !res.View.DueQueueComplete {
		t.Errorf("expected switch to extra queue: %+v", res.View)
	}
	if res.View.QueueLength != 2 {
		t.Errorf("extra queue length = %d, want 2", res.View.QueueLength)
	}
	if got := currentID(t, res.View); got == "c" {
		t.Error("ineligible sentence presented")
	}

	cv, err := svc.Checkpoint(ctx, v.Session.ID, t0.Add(11*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !cv.Done {
		t.Errorf("session should end once target time is reached: %+v", cv)
	}
	stored := store.storedSession(v.Session.ID)
	if !stored.State.IsComplete || stored.State.ElapsedTimeSeconds < 600 {
		t.Errorf("stored session = %+v", stored.State)
	}
}

func TestDueThenExtraWithNothingDueStartsInExtra(t *testing.T) {
	store := newMemStore(testSettings(), dueSentence("a", 2, -72))
	svc := newTestService(store)
	v, err := svc.Start(context.Background(), domain.DueThenExtra, 5, t0)
	if err != nil {
		t.Fatal(err)
	}
	if currentID(t, v) != "a" || !v.InExtra {
		t.Errorf("view = %+v", v)
	}
}

func TestStartResumesIncompleteSession(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testSettings(), dueSentence("a", 1, 3), dueSentence("b", 1, 2), dueSentence("c", 1, 1))
	first := newTestService(store)
	v, err := first.Start(ctx, domain.DueOnly, 10, t0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Rate(ctx, v.Session.ID, "a", domain.Next, t0.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	second := newTestService(store)
	resumed, err := second.Start(ctx, domain.DueThenExtra, 30, t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Session.ID != v.Session.ID || resumed.Session.Mode != domain.DueOnly || resumed.Session.TargetMinutes != 10 {
		t.Errorf("did not resume: %+v", resumed.Session)
	}
	if currentID(t, resumed) != "b" {
		t.Errorf("resumed at %s, want b", currentID(t, resumed))
	}
	if resumed.Session.State.ElapsedTimeSeconds < 60 {
		t.Errorf("elapsed time lost on resume: %v", resumed.Session.State.ElapsedTimeSeconds)
	}
}

func TestEndDiscardsFrozenSet(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(testSettings(), dueSentence("a", 1, 2), dueSentence("b", 1, 1))
	svc := newTestService(store)
	v, err := svc.Start(ctx, domain.DueOnly, 10, t0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Rate(ctx, v.Session.ID, "a", domain.Repeat, t0); err != nil {
		t.Fatal(err)
	}

	ended, err := svc.End(ctx, v.Session.ID, t0.Add(3*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if ended.EndedAt == nil || len(ended.State.FrozenSentenceIDs) != 0 || !ended.State.IsComplete {
		t.Errorf("ended session = %+v", ended)
	}
	if got := store.storedSession(v.Session.ID); got.EndedAt == nil || got.State.ElapsedTimeSeconds != 180 {
		t.Errorf("stored session = %+v", got)
	}
	if _, err := svc.Current(v.Session.ID); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Current after End: err = %v, want ErrUnknownSession", err)
	}
	if inc, _ := store.IncompleteSession(ctx); inc != nil {
		t.Errorf("ended session still incomplete: %+v", inc)
	}
}
