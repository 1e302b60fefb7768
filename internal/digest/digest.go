// Package digest logs a daily summary of the review backlog at the
// configured reset time.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/scheduling"
)

// Store is the read access the digest needs.
type Store interface {
	Sentences(ctx context.Context, languageCode string) ([]domain.Sentence, error)
	ReviewEvents(ctx context.Context, sentenceID string) ([]domain.ReviewEvent, error)
	Sessions(ctx context.Context) ([]domain.Session, error)
	Settings(ctx context.Context) (domain.Settings, error)
}

// Summary is the backlog and progress for the current language.
type Summary struct {
	Language   string `json:"language"`
	DueNow     int    `json:"due_now"`
	DueToday   int    `json:"due_today"`
	Streak     int    `json:"streak"`
	Stabilized int    `json:"stabilized"`
}

// Compute builds the summary at now from the stored settings.
func Compute(ctx context.Context, store Store, now time.Time) (Summary, error) {
	settings, err := store.Settings(ctx)
	if err != nil {
		return Summary{}, err
	}
	sentences, err := store.Sentences(ctx, settings.CurrentLanguage)
	if err != nil {
		return Summary{}, err
	}
	events, err := store.ReviewEvents(ctx, "")
	if err != nil {
		return Summary{}, err
	}
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Language:   settings.CurrentLanguage,
		DueNow:     len(scheduling.DueNow(sentences, now)),
		DueToday:   len(scheduling.DueToday(sentences, settings, now)),
		Streak:     scheduling.Streak(sessions, events, settings, now),
		Stabilized: scheduling.CountStabilized(sentences, events),
	}, nil
}

// Digest runs Compute once a day at the daily reset.
type Digest struct {
	store     Store
	scheduler *gocron.Scheduler
	now       func() time.Time

	mu   sync.Mutex
	ctx  context.Context
	last Summary
}

// New schedules the daily job in the settings timezone.
func New(store Store, settings domain.Settings) (*Digest, error) {
	d := &Digest{
		store:     store,
		scheduler: gocron.NewScheduler(settings.Location()),
		now:       time.Now,
		ctx:       context.Background(),
	}
	if _, err := d.scheduler.Every(1).Day().At(settings.DailyResetTime).Do(d.run); err != nil {
		return nil, fmt.Errorf("failed to schedule daily digest at %q: %w", settings.DailyResetTime, err)
	}
	return d, nil
}

// Start runs the scheduler in the background until ctx is done.
func (d *Digest) Start(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()
	d.scheduler.StartAsync()
	go func() {
		<-ctx.Done()
		d.Stop()
	}()
}

// Stop terminates the scheduler.
func (d *Digest) Stop() {
	if d.scheduler.IsRunning() {
		d.scheduler.Stop()
	}
}

// NextRun returns when the digest will next be logged.
func (d *Digest) NextRun() time.Time {
	_, next := d.scheduler.NextRun()
	return next
}

// Last returns the most recently computed summary.
func (d *Digest) Last() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *Digest) run() {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()

	summary, err := Compute(ctx, d.store, d.now())
	if err != nil {
		slog.Error("Failed to compute daily digest", "error", err)
		return
	}
	d.mu.Lock()
	d.last = summary
	d.mu.Unlock()
	slog.Info("Daily digest",
		"language", summary.Language,
		"due_now", summary.DueNow,
		"due_today", summary.DueToday,
		"streak", summary.Streak,
		"stabilized", summary.Stabilized,
	)
}
