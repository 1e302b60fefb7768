package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// SessionMode controls whether the extra queue is used once the due queue
// is exhausted.
type SessionMode string

const (
	DueOnly      SessionMode = "DueOnly"
	DueThenExtra SessionMode = "DueThenExtra"
)

// ParseSessionMode validates a mode name. An empty string yields DueThenExtra.
func ParseSessionMode(s string) (SessionMode, error) {
	switch SessionMode(s) {
	case "":
		return DueThenExtra, nil
	case DueOnly, DueThenExtra:
		return SessionMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// SessionState is the mutable progress of a running session.
type SessionState struct {
	CurrentItemID      string  `json:"current_item_id,omitempty"`
	QueuePosition      int     `json:"queue_position"`
	ElapsedTimeSeconds float64 `json:"elapsed_time_seconds"`
	IsComplete         bool    `json:"is_complete"`
	// FrozenSentenceIDs lists sentences given a Repeat this session.
	// Never carried past the end of the session.
	FrozenSentenceIDs []string `json:"frozen_sentence_ids"`
}

// Session is one practice run.
type Session struct {
	ID               string       `json:"id"`
	StartedAt        time.Time    `json:"started_at"`
	EndedAt          *time.Time   `json:"ended_at"`
	Mode             SessionMode  `json:"mode"`
	TargetMinutes    int          `json:"target_minutes"`
	SettingsSnapshot Settings     `json:"settings_snapshot"`
	State            SessionState `json:"state"`
}

// NewSession starts a session at now with a private copy of settings.
func NewSession(targetMinutes int, settings Settings, mode SessionMode, now time.Time) Session {
	snapshot := settings
	snapshot.BoxIntervals = slices.Clone(settings.BoxIntervals)
	return Session{
		ID:               uuid.NewString(),
		StartedAt:        now,
		Mode:             mode,
		TargetMinutes:    targetMinutes,
		SettingsSnapshot: snapshot,
		State: SessionState{
			FrozenSentenceIDs: []string{},
		},
	}
}

// IsIncomplete reports whether the session can be resumed.
func (s Session) IsIncomplete() bool {
	return !s.State.IsComplete && s.EndedAt == nil
}

// IsFrozen reports whether sentenceID was given a Repeat in this session.
func (s Session) IsFrozen(sentenceID string) bool {
	return slices.Contains(s.State.FrozenSentenceIDs, sentenceID)
}

// Clone deep-copies the session.
func (s Session) Clone() Session {
	out := s
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	out.SettingsSnapshot.BoxIntervals = slices.Clone(s.SettingsSnapshot.BoxIntervals)
	out.State.FrozenSentenceIDs = slices.Clone(s.State.FrozenSentenceIDs)
	return out
}
