package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Sentence is a single reviewable unit: an English prompt paired with
// target-language audio.
type Sentence struct {
	ID                         string          `json:"id"`
	LanguageCode               string          `json:"language_code"`
	EnglishText                string          `json:"english_translation_text"`
	TargetText                 string          `json:"target_text,omitempty"`
	TargetAudioURI             string          `json:"target_audio_uri"`
	TargetAudioDurationSeconds *float64        `json:"target_audio_duration_seconds,omitempty"`
	Tags                       []string        `json:"tags,omitempty"`
	CreatedAt                  time.Time       `json:"created_at"`
	IsEligible                 bool            `json:"is_eligible"`
	Scheduling                 SchedulingState `json:"scheduling_state"`
	Stats                      SentenceStats   `json:"stats"`
}

// SchedulingState is the per-sentence Leitner data.
type SchedulingState struct {
	BoxLevel       int        `json:"box_level"`
	DueAt          time.Time  `json:"due_at"`
	LastRating     *Rating    `json:"last_rating"`
	LastReviewedAt *time.Time `json:"last_reviewed_at"`
	// RelearnLock is set on a Miss and forces the sentence into the next
	// qualifying session regardless of DueAt.
	RelearnLock   bool `json:"relearn_lock_until_next_session"`
	LapseCount    int  `json:"lapse_count"`
	SuccessStreak int  `json:"success_streak"`
}

// SentenceStats holds lifetime counters.
type SentenceStats struct {
	TotalReviews int `json:"total_reviews"`
	TotalMisses  int `json:"total_misses"`
}

// SentenceOption customises NewSentence.
type SentenceOption func(*Sentence)

// WithTargetText sets the target-language transcript.
func WithTargetText(text string) SentenceOption {
	return func(s *Sentence) { s.TargetText = text }
}

// WithTags sets the sentence tags.
func WithTags(tags ...string) SentenceOption {
	return func(s *Sentence) { s.Tags = slices.Clone(tags) }
}

// WithAudioDuration records the length of the target audio in seconds.
func WithAudioDuration(seconds float64) SentenceOption {
	return func(s *Sentence) { s.TargetAudioDurationSeconds = &seconds }
}

// WithID overrides the generated identifier.
func WithID(id string) SentenceOption {
	return func(s *Sentence) {
		if id != "" {
			s.ID = id
		}
	}
}

// NewSentence creates an inbox sentence: not yet eligible, box 1, due at now.
func NewSentence(languageCode, english, audioURI string, now time.Time, opts ...SentenceOption) Sentence {
	s := Sentence{
		ID:             uuid.NewString(),
		LanguageCode:   languageCode,
		EnglishText:    english,
		TargetAudioURI: audioURI,
		CreatedAt:      now,
		Scheduling: SchedulingState{
			BoxLevel: 1,
			DueAt:    now,
		},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// AudioDurationSeconds returns the stored audio length, or 0 when unknown.
func (s Sentence) AudioDurationSeconds() float64 {
	if s.TargetAudioDurationSeconds == nil {
		return 0
	}
	return *s.TargetAudioDurationSeconds
}

// Clone returns a deep copy so callers can modify the result without
// touching the receiver.
func (s Sentence) Clone() Sentence {
	out := s
	out.Tags = slices.Clone(s.Tags)
	if s.TargetAudioDurationSeconds != nil {
		d := *s.TargetAudioDurationSeconds
		out.TargetAudioDurationSeconds = &d
	}
	if s.Scheduling.LastRating != nil {
		r := *s.Scheduling.LastRating
		out.Scheduling.LastRating = &r
	}
	if s.Scheduling.LastReviewedAt != nil {
		t := *s.Scheduling.LastReviewedAt
		out.Scheduling.LastReviewedAt = &t
	}
	return out
}
