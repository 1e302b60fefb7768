// Package practice runs practice sessions on top of the scheduling core:
// it builds the queues, applies ratings, persists the results and drives
// each item through its phases.
package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/queue"
	"github.com/conorfennell/recall/internal/session"
	"github.com/conorfennell/recall/internal/storage"
)

var (
	// ErrRatingNotAccepted is returned for a rating that does not belong to
	// the item currently awaiting one, such as a duplicate submission.
	ErrRatingNotAccepted = errors.New("practice: rating not accepted")
	ErrUnknownSession    = errors.New("practice: no running session with that id")
	ErrSessionEnded      = errors.New("practice: session has ended")
)

// checkpointInterval is how often elapsed time is persisted while a
// session runs.
const checkpointInterval = 10 * time.Second

// Store is the persistence the service needs.
type Store interface {
	Sentences(ctx context.Context, languageCode string) ([]domain.Sentence, error)
	Sentence(ctx context.Context, id string) (domain.Sentence, error)
	ReviewEvents(ctx context.Context, sentenceID string) ([]domain.ReviewEvent, error)
	// RecordReview stores a rated sentence and its review event atomically.
	RecordReview(ctx context.Context, s domain.Sentence, e domain.ReviewEvent) error
	SaveSession(ctx context.Context, s domain.Session) error
	UpdateSession(ctx context.Context, s domain.Session) error
	IncompleteSession(ctx context.Context) (*domain.Session, error)
	Settings(ctx context.Context) (domain.Settings, error)
	HasAudio(ctx context.Context, sentenceID string) (bool, error)
}

// View is a snapshot of a running session.
type View struct {
	Session domain.Session
	// Current is the sentence awaiting presentation, nil once the session
	// has ended.
	Current          *domain.Sentence
	Position         int
	QueueLength      int
	InExtra          bool
	DueQueueComplete bool
	Done             bool
}

// RateResult reports the effects of an accepted rating.
type RateResult struct {
	Event domain.ReviewEvent
	// FrozenCue is set the first time a sentence is frozen in a session.
	FrozenCue    bool
	LockConsumed bool
	// EnteredExtra is set when this rating exhausted the due queue and the
	// session moved on to the extra queue.
	EnteredExtra bool
	View         View
}

// Service coordinates practice sessions. Each session is serialized by its
// own lock; different sessions proceed independently.
type Service struct {
	store Store

	mu   sync.Mutex
	rng  *rand.Rand
	runs map[string]*run
}

// Option configures a Service.
type Option func(*Service)

// WithRand sets the source used to shuffle and reinsert queue items.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.rng = r }
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		runs:  make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type run struct {
	mu sync.Mutex

	session  domain.Session
	rng      *rand.Rand
	due      []queue.Item
	extra    []queue.Item
	current  []queue.Item
	position int
	inExtra  bool
	dueDone  bool
	done     bool
	// accepting is true while the current item may be rated.
	accepting bool

	baseElapsed    float64
	resumedAt      time.Time
	lastCheckpoint time.Time
}

func (r *run) elapsed(now time.Time) float64 {
	return r.baseElapsed + now.Sub(r.resumedAt).Seconds()
}

func (r *run) timeUp(now time.Time) bool {
	return r.elapsed(now) >= float64(r.session.TargetMinutes*60)
}

func (r *run) view() View {
	v := View{
		Session:          r.session.Clone(),
		Position:         r.position,
		QueueLength:      len(r.current),
		InExtra:          r.inExtra,
		DueQueueComplete: r.dueDone,
		Done:             r.done,
	}
	if !r.done && r.position < len(r.current) {
		s := r.current[r.position].Sentence.Clone()
		v.Current = &s
	}
	return v
}

// Start resumes the incomplete session if there is one, otherwise begins a
// new session with a snapshot of the stored settings. In both cases the
// queues are built afresh and the first playable item is selected.
func (s *Service) Start(ctx context.Context, mode domain.SessionMode, targetMinutes int, now time.Time) (View, error) {
	incomplete, err := s.store.IncompleteSession(ctx)
	if err != nil {
		return View{}, err
	}

	var sess domain.Session
	resumeID := ""
	if incomplete != nil {
		sess = *incomplete
		resumeID = sess.State.CurrentItemID
		slog.Info("Resuming incomplete session", "session_id", sess.ID, "elapsed_seconds", sess.State.ElapsedTimeSeconds)
	} else {
		settings, err := s.store.Settings(ctx)
		if err != nil {
			return View{}, err
		}
		sess = domain.NewSession(targetMinutes, settings, mode, now)
		if err := s.store.SaveSession(ctx, sess); err != nil {
			return View{}, err
		}
		slog.Info("Started session", "session_id", sess.ID, "mode", sess.Mode, "target_minutes", targetMinutes)
	}

	settings := sess.SettingsSnapshot
	sentences, err := s.store.Sentences(ctx, settings.CurrentLanguage)
	if err != nil {
		return View{}, err
	}
	events, err := s.store.ReviewEvents(ctx, "")
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	r := &run{
		session:        sess,
		rng:            rand.New(rand.NewPCG(s.rng.Uint64(), s.rng.Uint64())),
		baseElapsed:    sess.State.ElapsedTimeSeconds,
		resumedAt:      now,
		lastCheckpoint: now,
	}
	s.runs[sess.ID] = r
	s.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.due = queue.BuildDue(sentences, sess, settings, now)
	if sess.Mode == domain.DueThenExtra {
		r.extra = queue.BuildExtra(sentences, sess.ID, events, settings, now, r.rng)
	}
	r.current = r.due
	slog.Info("Built session queues", "session_id", sess.ID, "due", len(r.due), "extra", len(r.extra))

	start := 0
	for i, it := range r.current {
		if it.Sentence.ID == resumeID {
			start = i
			break
		}
	}
	if err := s.moveTo(ctx, r, start, now); err != nil {
		return View{}, err
	}
	if err := s.persist(ctx, r, now); err != nil {
		return View{}, err
	}
	return r.view(), nil
}

// Current returns the state of a running session.
func (s *Service) Current(sessionID string) (View, error) {
	r, err := s.lookup(sessionID)
	if err != nil {
		return View{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view(), nil
}

// Rate applies rating to the sentence awaiting one. The rating is rejected
// with ErrRatingNotAccepted unless sentenceID is the current item and no
// rating has been accepted for it yet.
func (s *Service) Rate(ctx context.Context, sessionID, sentenceID string, rating domain.Rating, now time.Time) (RateResult, error) {
	r, err := s.lookup(sessionID)
	if err != nil {
		return RateResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return RateResult{}, ErrSessionEnded
	}
	if !r.accepting || r.position >= len(r.current) || r.current[r.position].Sentence.ID != sentenceID {
		return RateResult{}, fmt.Errorf("%w: sentence %s", ErrRatingNotAccepted, sentenceID)
	}
	current := r.current[r.position].Sentence
	outcome, err := session.HandleRating(current, rating, r.session, r.session.SettingsSnapshot, now)
	if err != nil {
		return RateResult{}, err
	}
	if err := s.store.RecordReview(ctx, outcome.Sentence, outcome.Event); err != nil {
		return RateResult{}, err
	}
	r.accepting = false
	slog.Info("Rated sentence", "session_id", sessionID, "sentence_id", sentenceID, "rating", rating,
		"box_level", outcome.Event.BoxLevelAfter, "due_at", outcome.Event.ComputedNextDueAt)

	res := RateResult{Event: outcome.Event, LockConsumed: outcome.LockConsumed}
	if outcome.ShouldFreeze {
		r.session, res.FrozenCue = session.Freeze(r.session, sentenceID)
	}
	if outcome.ShouldUnfreeze {
		r.session = session.Unfreeze(r.session, sentenceID)
	}

	next := r.position + 1
	if outcome.ShouldReinsert {
		r.current = queue.Reinsert(r.current, queue.Item{Sentence: outcome.Sentence}, r.position, r.rng)
		// The item left r.position, so its successor now occupies it.
		next = r.position
	} else {
		r.current[r.position].Sentence = outcome.Sentence
	}

	wasExtra := r.inExtra
	if err := s.moveTo(ctx, r, next, now); err != nil {
		return RateResult{}, err
	}
	res.EnteredExtra = !wasExtra && r.inExtra
	if err := s.persist(ctx, r, now); err != nil {
		return RateResult{}, err
	}
	res.View = r.view()
	return res, nil
}

// Checkpoint records elapsed time and ends the session once its target
// duration has been reached. Writes are throttled to checkpointInterval.
func (s *Service) Checkpoint(ctx context.Context, sessionID string, now time.Time) (View, error) {
	r, err := s.lookup(sessionID)
	if err != nil {
		return View{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return r.view(), nil
	}
	if r.timeUp(now) {
		slog.Info("Session target time reached", "session_id", sessionID)
		if err := s.finish(ctx, r, now); err != nil {
			return View{}, err
		}
		return r.view(), nil
	}
	if now.Sub(r.lastCheckpoint) >= checkpointInterval {
		if err := s.persist(ctx, r, now); err != nil {
			return View{}, err
		}
	}
	return r.view(), nil
}

// End finishes a session early or after its queue ran out.
func (s *Service) End(ctx context.Context, sessionID string, now time.Time) (domain.Session, error) {
	r, err := s.lookup(sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.done {
		if err := s.finish(ctx, r, now); err != nil {
			return domain.Session{}, err
		}
	}
	s.mu.Lock()
	delete(s.runs, sessionID)
	s.mu.Unlock()
	return r.session.Clone(), nil
}

func (s *Service) lookup(sessionID string) (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return r, nil
}

// moveTo selects the first playable item at or after position. Items whose
// audio is missing, or whose sentence was deleted or withdrawn since the
// queue was built, are skipped. When the due queue runs out the extra queue
// takes over if the mode allows it and time remains; otherwise the session
// ends.
func (s *Service) moveTo(ctx context.Context, r *run, position int, now time.Time) error {
	for {
		if position >= len(r.current) {
			if !r.inExtra {
				r.dueDone = true
				if r.session.Mode == domain.DueThenExtra && len(r.extra) > 0 && !r.timeUp(now) {
					slog.Info("Due reviews complete, continuing with extra practice", "session_id", r.session.ID)
					r.current = r.extra
					r.inExtra = true
					position = 0
					continue
				}
			}
			return s.finish(ctx, r, now)
		}
		if r.inExtra && r.timeUp(now) {
			return s.finish(ctx, r, now)
		}

		id := r.current[position].Sentence.ID
		ok, err := s.store.HasAudio(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			slog.Warn("Skipping sentence with missing audio", "session_id", r.session.ID, "sentence_id", id)
			position++
			continue
		}
		fresh, err := s.store.Sentence(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			slog.Warn("Skipping deleted sentence", "session_id", r.session.ID, "sentence_id", id)
			position++
			continue
		}
		if err != nil {
			return err
		}
		if !fresh.IsEligible {
			slog.Warn("Skipping ineligible sentence", "session_id", r.session.ID, "sentence_id", id)
			position++
			continue
		}

		r.current[position].Sentence = fresh
		r.position = position
		r.accepting = true
		return nil
	}
}

func (s *Service) finish(ctx context.Context, r *run, now time.Time) error {
	r.accepting = false
	r.session = session.UpdateState(r.session, session.StateUpdate{
		ElapsedTimeSeconds: session.Ptr(r.elapsed(now)),
		CurrentItemID:      session.Ptr(""),
	})
	ended := session.End(r.session, now)
	if err := s.store.UpdateSession(ctx, ended); err != nil {
		return err
	}
	r.session = ended
	r.done = true
	slog.Info("Session ended", "session_id", ended.ID, "elapsed_seconds", ended.State.ElapsedTimeSeconds)
	return nil
}

func (s *Service) persist(ctx context.Context, r *run, now time.Time) error {
	if r.done {
		return nil
	}
	currentID := ""
	if r.position < len(r.current) {
		currentID = r.current[r.position].Sentence.ID
	}
	updated := session.UpdateState(r.session, session.StateUpdate{
		CurrentItemID:      &currentID,
		QueuePosition:      session.Ptr(r.position),
		ElapsedTimeSeconds: session.Ptr(r.elapsed(now)),
	})
	if err := s.store.UpdateSession(ctx, updated); err != nil {
		return err
	}
	r.session = updated
	r.lastCheckpoint = now
	return nil
}
