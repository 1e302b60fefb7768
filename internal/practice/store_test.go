package practice

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/storage"
)

// memStore is an in-memory Store.
type memStore struct {
	mu        sync.Mutex
	sentences []domain.Sentence
	events    []domain.ReviewEvent
	sessions  map[string]domain.Session
	settings  domain.Settings
	noAudio   map[string]bool
	// reviewErr, when set, fails the next RecordReview without writing.
	reviewErr error
}

func newMemStore(settings domain.Settings, sentences ...domain.Sentence) *memStore {
	return &memStore{
		sentences: sentences,
		sessions:  make(map[string]domain.Session),
		settings:  settings,
		noAudio:   make(map[string]bool),
	}
}

func (m *memStore) Sentences(_ context.Context, lang string) ([]domain.Sentence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Sentence
	for _, s := range m.sentences {
		if lang == "" || s.LanguageCode == lang {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (m *memStore) Sentence(_ context.Context, id string) (domain.Sentence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sentences {
		if s.ID == id {
			return s.Clone(), nil
		}
	}
	return domain.Sentence{}, fmt.Errorf("sentence %s: %w", id, storage.ErrNotFound)
}

func (m *memStore) UpdateSentence(_ context.Context, s domain.Sentence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.sentences, func(x domain.Sentence) bool { return x.ID == s.ID })
	if i < 0 {
		return storage.ErrNotFound
	}
	m.sentences[i] = s.Clone()
	return nil
}

func (m *memStore) ReviewEvents(_ context.Context, sentenceID string) ([]domain.ReviewEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ReviewEvent
	for _, e := range m.events {
		if sentenceID == "" || e.SentenceID == sentenceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) SaveReviewEvent(_ context.Context, e domain.ReviewEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) RecordReview(ctx context.Context, s domain.Sentence, e domain.ReviewEvent) error {
	m.mu.Lock()
	if err := m.reviewErr; err != nil {
		m.reviewErr = nil
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	if err := m.UpdateSentence(ctx, s); err != nil {
		return err
	}
	return m.SaveReviewEvent(ctx, e)
}

func (m *memStore) SaveSession(_ context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memStore) UpdateSession(_ context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return storage.ErrNotFound
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memStore) IncompleteSession(context.Context) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *domain.Session
	for _, s := range m.sessions {
		if s.IsIncomplete() && (found == nil || s.StartedAt.After(found.StartedAt)) {
			c := s.Clone()
			found = &c
		}
	}
	return found, nil
}

func (m *memStore) Settings(context.Context) (domain.Settings, error) {
	return m.settings, nil
}

func (m *memStore) HasAudio(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.noAudio[id], nil
}

func (m *memStore) sentence(id string) domain.Sentence {
	s, _ := m.Sentence(context.Background(), id)
	return s
}

func (m *memStore) storedSession(id string) domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id].Clone()
}
