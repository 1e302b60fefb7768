package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/session"
)

// Speaker reads text aloud and returns once it has finished.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Player plays a sentence's target audio and returns once playback has
// ended or failed.
type Player interface {
	Play(ctx context.Context, sentenceID string) error
}

// RatingCapture listens for a rating while enabled and hands it to the
// driver through Driver.SubmitRating.
type RatingCapture interface {
	Enable(ctx context.Context) error
	Disable()
}

// DriverConfig holds the driver's timing.
type DriverConfig struct {
	Tick           time.Duration
	PromptFallback time.Duration
}

type eventKind int

const (
	evPromptSpoken eventKind = iota
	evAnswerEnded
	evRating
)

type event struct {
	kind eventKind
	// item identifies the presentation an event belongs to, so signals
	// from a previous item are ignored.
	item   int
	rating domain.Rating
}

// Driver presents the items of one session. All state changes happen on the
// goroutine running Run; ticks and collaborator signals arrive as messages.
type Driver struct {
	svc       *Service
	sessionID string
	speaker   Speaker
	player    Player
	capture   RatingCapture
	cfg       DriverConfig
	now       func() time.Time

	events  chan event
	stopped chan struct{}

	item      session.Item
	itemSeq   int
	capturing bool
	settings  domain.Settings
}

// NewDriver creates a driver for a session already started on svc.
func NewDriver(svc *Service, sessionID string, speaker Speaker, player Player, capture RatingCapture, cfg DriverConfig) *Driver {
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	if cfg.PromptFallback <= 0 {
		cfg.PromptFallback = 8 * time.Second
	}
	return &Driver{
		svc:       svc,
		sessionID: sessionID,
		speaker:   speaker,
		player:    player,
		capture:   capture,
		cfg:       cfg,
		now:       time.Now,
		events:    make(chan event, 16),
		stopped:   make(chan struct{}),
	}
}

// SubmitRating delivers a rating for the current item. It is safe to call
// from any goroutine; ratings arriving while capture is disabled are dropped.
func (d *Driver) SubmitRating(ctx context.Context, r domain.Rating) error {
	select {
	case d.events <- event{kind: evRating, rating: r}:
		return nil
	case <-d.stopped:
		return ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the session until it ends or ctx is cancelled. A cancelled
// session is left incomplete so it can be resumed.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.stopped)

	view, err := d.svc.Current(d.sessionID)
	if err != nil {
		return err
	}
	d.settings = view.Session.SettingsSnapshot
	if done := d.present(ctx, view); done {
		return nil
	}

	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()
	defer d.disableCapture()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := d.onTick(ctx)
			if err != nil || done {
				return err
			}
		case ev := <-d.events:
			done, err := d.onEvent(ctx, ev)
			if err != nil || done {
				return err
			}
		}
	}
}

func (d *Driver) onTick(ctx context.Context) (bool, error) {
	now := d.now()
	view, err := d.svc.Checkpoint(ctx, d.sessionID, now)
	if err != nil {
		return false, err
	}
	if view.Done {
		return true, nil
	}
	d.apply(ctx, session.Advance(d.item, session.TriggerTick, now))
	return false, nil
}

func (d *Driver) onEvent(ctx context.Context, ev event) (bool, error) {
	switch ev.kind {
	case evPromptSpoken:
		if ev.item == d.itemSeq {
			d.apply(ctx, session.Advance(d.item, session.TriggerPromptSpoken, d.now()))
		}
	case evAnswerEnded:
		if ev.item == d.itemSeq {
			d.apply(ctx, session.Advance(d.item, session.TriggerAnswerEnded, d.now()))
		}
	case evRating:
		return d.onRating(ctx, ev.rating)
	}
	return false, nil
}

func (d *Driver) onRating(ctx context.Context, rating domain.Rating) (bool, error) {
	if !d.capturing || d.item.Phase != session.PhaseRating {
		slog.Debug("Dropping rating received outside rating capture", "session_id", d.sessionID, "rating", rating)
		return false, nil
	}
	d.disableCapture()

	res, err := d.svc.Rate(ctx, d.sessionID, d.item.Sentence.ID, rating, d.now())
	switch {
	case errors.Is(err, ErrRatingNotAccepted):
		slog.Warn("Rating rejected", "session_id", d.sessionID, "error", err)
		return false, nil
	case errors.Is(err, domain.ErrInvalidRating):
		slog.Warn("Invalid rating, listening again", "session_id", d.sessionID, "error", err)
		d.enableCapture(ctx)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to apply rating: %w", err)
	}

	var cues []string
	if res.FrozenCue {
		cues = append(cues, "Frozen")
	}
	if res.EnteredExtra {
		cues = append(cues, "Due reviews complete.")
	}
	return d.present(ctx, res.View, cues...), nil
}

// present starts the view's current item, speaking any cues before its
// prompt. It reports true when the session has nothing left to present.
func (d *Driver) present(ctx context.Context, view View, cues ...string) bool {
	if view.Done || view.Current == nil {
		return true
	}
	d.itemSeq++
	d.item = session.NewItem(*view.Current, d.settings, d.cfg.PromptFallback, d.now())

	seq, text := d.itemSeq, view.Current.EnglishText
	go func() {
		for _, cue := range cues {
			if err := d.speaker.Speak(ctx, cue); err != nil {
				slog.Debug("Audio cue failed", "text", cue, "error", err)
			}
		}
		if err := d.speaker.Speak(ctx, text); err != nil {
			slog.Warn("Prompt speaker failed", "session_id", d.sessionID, "error", err)
		}
		d.post(ctx, event{kind: evPromptSpoken, item: seq})
	}()
	return false
}

func (d *Driver) apply(ctx context.Context, step session.Step) {
	d.item = step.Item
	if step.ShouldPlayAnswer {
		seq, id := d.itemSeq, d.item.Sentence.ID
		go func() {
			if err := d.player.Play(ctx, id); err != nil {
				slog.Warn("Answer playback failed", "session_id", d.sessionID, "sentence_id", id, "error", err)
			}
			d.post(ctx, event{kind: evAnswerEnded, item: seq})
		}()
	}
	if step.ShouldCaptureRating && !d.capturing {
		d.enableCapture(ctx)
	}
}

func (d *Driver) enableCapture(ctx context.Context) {
	if err := d.capture.Enable(ctx); err != nil {
		slog.Warn("Rating capture unavailable, waiting for manual input", "session_id", d.sessionID, "error", err)
	}
	d.capturing = true
}

func (d *Driver) disableCapture() {
	if d.capturing {
		d.capture.Disable()
		d.capturing = false
	}
}

func (d *Driver) post(ctx context.Context, ev event) {
	select {
	case d.events <- ev:
	case <-d.stopped:
	case <-ctx.Done():
	}
}
