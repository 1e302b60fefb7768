package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/conorfennell/recall/internal/config"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/practice"
	"github.com/conorfennell/recall/internal/storage"
)

// practiceInTerminal drives a session with text standing in for speech:
// prompts and answers are printed and ratings are read as single letters.
func practiceInTerminal(ctx context.Context, db *storage.DB, cfg config.Config, mode domain.SessionMode, minutes int, in io.Reader, out io.Writer) error {
	svc := practice.NewService(db)
	view, err := svc.Start(ctx, mode, minutes, time.Now())
	if err != nil {
		return err
	}
	if view.Done {
		fmt.Fprintln(out, "Nothing to practice.")
		return nil
	}

	console := &console{out: out, db: db}
	capture := &lineCapture{console: console}
	d := practice.NewDriver(svc, view.Session.ID, console, console, capture, practice.DriverConfig{
		Tick:           cfg.Session.Tick,
		PromptFallback: cfg.Session.PromptFallback,
	})
	capture.driver = d

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go capture.read(runCtx, in)

	err = d.Run(runCtx)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, "\nSession paused; it will resume next time.")
		return nil
	}
	if err != nil {
		return err
	}
	ended, err := svc.End(ctx, view.Session.ID, time.Now())
	if err != nil && !errors.Is(err, practice.ErrUnknownSession) {
		return err
	}
	fmt.Fprintf(out, "Session complete after %.0f seconds.\n", ended.State.ElapsedTimeSeconds)
	return nil
}

// console prints prompts and answers and waits out the answer's length.
type console struct {
	mu  sync.Mutex
	out io.Writer
	db  *storage.DB
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) Speak(_ context.Context, text string) error {
	c.printf("%s\n", text)
	return nil
}

func (c *console) Play(ctx context.Context, sentenceID string) error {
	s, err := c.db.Sentence(ctx, sentenceID)
	if err != nil {
		return err
	}
	answer := s.TargetText
	if answer == "" {
		answer = s.TargetAudioURI
	}
	c.printf("  -> %s\n", answer)

	select {
	case <-time.After(time.Duration(s.AudioDurationSeconds() * float64(time.Second))):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var ratingKeys = map[string]domain.Rating{
	"m": domain.Miss,
	"r": domain.Repeat,
	"n": domain.Next,
	"e": domain.Easy,
}

// lineCapture reads ratings from input lines while enabled.
type lineCapture struct {
	console *console
	driver  *practice.Driver

	mu      sync.Mutex
	enabled bool
}

func (l *lineCapture) Enable(context.Context) error {
	l.mu.Lock()
	l.enabled = true
	l.mu.Unlock()
	l.console.printf("  [m]iss [r]epeat [n]ext [e]asy > ")
	return nil
}

func (l *lineCapture) Disable() {
	l.mu.Lock()
	l.enabled = false
	l.mu.Unlock()
}

func (l *lineCapture) read(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		key := strings.ToLower(strings.TrimSpace(scanner.Text()))
		rating, ok := ratingKeys[key]
		l.mu.Lock()
		enabled := l.enabled
		l.mu.Unlock()
		if !enabled {
			continue
		}
		if !ok {
			l.console.printf("  unknown rating %q > ", key)
			continue
		}
		if err := l.driver.SubmitRating(ctx, rating); err != nil {
			return
		}
	}
}
