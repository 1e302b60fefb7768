package storage

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// timeLayout is ISO-8601 in UTC with fixed nanosecond width.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// EncodeTime formats t as a fixed-width UTC ISO-8601 string.
func EncodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// DecodeTime parses any RFC 3339 timestamp, including the millisecond form
// produced by JavaScript's toISOString.
func DecodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func encodeOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := EncodeTime(*t)
	return &s
}

func decodeOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := DecodeTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type schedulingRecord struct {
	BoxLevel       int     `json:"box_level"`
	DueAt          string  `json:"due_at"`
	LastRating     *string `json:"last_rating"`
	LastReviewedAt *string `json:"last_reviewed_at"`
	RelearnLock    bool    `json:"relearn_lock_until_next_session"`
	LapseCount     int     `json:"lapse_count"`
	SuccessStreak  int     `json:"success_streak"`
}

type sentenceRecord struct {
	ID                         string               `json:"id"`
	LanguageCode               string               `json:"language_code"`
	EnglishText                string               `json:"english_translation_text"`
	TargetText                 string               `json:"target_text,omitempty"`
	TargetAudioURI             string               `json:"target_audio_uri"`
	TargetAudioDurationSeconds *float64             `json:"target_audio_duration_seconds,omitempty"`
	Tags                       []string             `json:"tags,omitempty"`
	CreatedAt                  string               `json:"created_at"`
	IsEligible                 bool                 `json:"is_eligible"`
	Scheduling                 *schedulingRecord    `json:"scheduling_state"`
	Stats                      domain.SentenceStats `json:"stats"`
}

type reviewEventRecord struct {
	ID                   string `json:"id"`
	SentenceID           string `json:"sentence_id"`
	SessionID            string `json:"session_id"`
	Timestamp            string `json:"timestamp"`
	Rating               string `json:"rating"`
	ComputedNextDueAt    string `json:"computed_next_due_at"`
	ComputedIntervalDays int    `json:"computed_interval_days"`
	BoxLevelAfter        int    `json:"box_level_after"`
}

type sessionRecord struct {
	ID               string              `json:"id"`
	StartedAt        string              `json:"started_at"`
	EndedAt          *string             `json:"ended_at"`
	Mode             string              `json:"mode"`
	TargetMinutes    int                 `json:"target_minutes"`
	SettingsSnapshot domain.Settings     `json:"settings_snapshot"`
	State            domain.SessionState `json:"state"`
}

type pendingAudioRecord struct {
	ID               string           `json:"id"`
	Filename         string           `json:"filename"`
	LanguageCode     string           `json:"languageCode"`
	DetectedLanguage string           `json:"detectedLanguage,omitempty"`
	UploadedAt       string           `json:"uploadedAt"`
	ProcessedAt      *string          `json:"processedAt,omitempty"`
	Segments         []domain.Segment `json:"segments,omitempty"`
	Tags             []string         `json:"tags,omitempty"`
}

// EncodeSentence serializes a sentence to its stored JSON form.
func EncodeSentence(s domain.Sentence) ([]byte, error) {
	return json.Marshal(toSentenceRecord(s))
}

func toSentenceRecord(s domain.Sentence) sentenceRecord {
	var lastRating *string
	if s.Scheduling.LastRating != nil {
		name := s.Scheduling.LastRating.String()
		lastRating = &name
	}
	return sentenceRecord{
		ID:                         s.ID,
		LanguageCode:               s.LanguageCode,
		EnglishText:                s.EnglishText,
		TargetText:                 s.TargetText,
		TargetAudioURI:             s.TargetAudioURI,
		TargetAudioDurationSeconds: s.TargetAudioDurationSeconds,
		Tags:                       s.Tags,
		CreatedAt:                  EncodeTime(s.CreatedAt),
		IsEligible:                 s.IsEligible,
		Scheduling: &schedulingRecord{
			BoxLevel:       s.Scheduling.BoxLevel,
			DueAt:          EncodeTime(s.Scheduling.DueAt),
			LastRating:     lastRating,
			LastReviewedAt: encodeOptionalTime(s.Scheduling.LastReviewedAt),
			RelearnLock:    s.Scheduling.RelearnLock,
			LapseCount:     s.Scheduling.LapseCount,
			SuccessStreak:  s.Scheduling.SuccessStreak,
		},
		Stats: s.Stats,
	}
}

// DecodeSentence parses the stored JSON form of a sentence.
func DecodeSentence(data []byte) (domain.Sentence, error) {
	var rec sentenceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Sentence{}, fmt.Errorf("failed to decode sentence: %w", err)
	}
	return fromSentenceRecord(rec)
}

func fromSentenceRecord(rec sentenceRecord) (domain.Sentence, error) {
	if rec.Scheduling == nil {
		return domain.Sentence{}, fmt.Errorf("sentence %s has no scheduling_state", rec.ID)
	}
	createdAt, err := DecodeTime(rec.CreatedAt)
	if err != nil {
		return domain.Sentence{}, fmt.Errorf("sentence %s created_at: %w", rec.ID, err)
	}
	dueAt, err := DecodeTime(rec.Scheduling.DueAt)
	if err != nil {
		return domain.Sentence{}, fmt.Errorf("sentence %s due_at: %w", rec.ID, err)
	}
	lastReviewed, err := decodeOptionalTime(rec.Scheduling.LastReviewedAt)
	if err != nil {
		return domain.Sentence{}, fmt.Errorf("sentence %s last_reviewed_at: %w", rec.ID, err)
	}
	var lastRating *domain.Rating
	if rec.Scheduling.LastRating != nil {
		r, err := domain.ParseRating(*rec.Scheduling.LastRating)
		if err != nil {
			return domain.Sentence{}, fmt.Errorf("sentence %s last_rating: %w", rec.ID, err)
		}
		lastRating = &r
	}
	return domain.Sentence{
		ID:                         rec.ID,
		LanguageCode:               rec.LanguageCode,
		EnglishText:                rec.EnglishText,
		TargetText:                 rec.TargetText,
		TargetAudioURI:             rec.TargetAudioURI,
		TargetAudioDurationSeconds: rec.TargetAudioDurationSeconds,
		Tags:                       rec.Tags,
		CreatedAt:                  createdAt,
		IsEligible:                 rec.IsEligible,
		Scheduling: domain.SchedulingState{
			BoxLevel:       rec.Scheduling.BoxLevel,
			DueAt:          dueAt,
			LastRating:     lastRating,
			LastReviewedAt: lastReviewed,
			RelearnLock:    rec.Scheduling.RelearnLock,
			LapseCount:     rec.Scheduling.LapseCount,
			SuccessStreak:  rec.Scheduling.SuccessStreak,
		},
		Stats: rec.Stats,
	}, nil
}

// EncodeReviewEvent serializes a review event to its stored JSON form.
func EncodeReviewEvent(e domain.ReviewEvent) ([]byte, error) {
	return json.Marshal(toReviewEventRecord(e))
}

func toReviewEventRecord(e domain.ReviewEvent) reviewEventRecord {
	return reviewEventRecord{
		ID:                   e.ID,
		SentenceID:           e.SentenceID,
		SessionID:            e.SessionID,
		Timestamp:            EncodeTime(e.Timestamp),
		Rating:               e.Rating.String(),
		ComputedNextDueAt:    EncodeTime(e.ComputedNextDueAt),
		ComputedIntervalDays: e.ComputedIntervalDays,
		BoxLevelAfter:        e.BoxLevelAfter,
	}
}

// DecodeReviewEvent parses the stored JSON form of a review event.
func DecodeReviewEvent(data []byte) (domain.ReviewEvent, error) {
	var rec reviewEventRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.ReviewEvent{}, fmt.Errorf("failed to decode review event: %w", err)
	}
	return fromReviewEventRecord(rec)
}

func fromReviewEventRecord(rec reviewEventRecord) (domain.ReviewEvent, error) {
	ts, err := DecodeTime(rec.Timestamp)
	if err != nil {
		return domain.ReviewEvent{}, fmt.Errorf("review event %s timestamp: %w", rec.ID, err)
	}
	next, err := DecodeTime(rec.ComputedNextDueAt)
	if err != nil {
		return domain.ReviewEvent{}, fmt.Errorf("review event %s computed_next_due_at: %w", rec.ID, err)
	}
	rating, err := domain.ParseRating(rec.Rating)
	if err != nil {
		return domain.ReviewEvent{}, fmt.Errorf("review event %s: %w", rec.ID, err)
	}
	return domain.ReviewEvent{
		ID:                   rec.ID,
		SentenceID:           rec.SentenceID,
		SessionID:            rec.SessionID,
		Timestamp:            ts,
		Rating:               rating,
		ComputedNextDueAt:    next,
		ComputedIntervalDays: rec.ComputedIntervalDays,
		BoxLevelAfter:        rec.BoxLevelAfter,
	}, nil
}

// EncodeSession serializes a session to its stored JSON form.
func EncodeSession(s domain.Session) ([]byte, error) {
	return json.Marshal(toSessionRecord(s))
}

func toSessionRecord(s domain.Session) sessionRecord {
	state := s.State
	if state.FrozenSentenceIDs == nil {
		state.FrozenSentenceIDs = []string{}
	}
	return sessionRecord{
		ID:               s.ID,
		StartedAt:        EncodeTime(s.StartedAt),
		EndedAt:          encodeOptionalTime(s.EndedAt),
		Mode:             string(s.Mode),
		TargetMinutes:    s.TargetMinutes,
		SettingsSnapshot: s.SettingsSnapshot,
		State:            state,
	}
}

// DecodeSession parses the stored JSON form of a session.
func DecodeSession(data []byte) (domain.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return fromSessionRecord(rec)
}

func fromSessionRecord(rec sessionRecord) (domain.Session, error) {
	started, err := DecodeTime(rec.StartedAt)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session %s started_at: %w", rec.ID, err)
	}
	ended, err := decodeOptionalTime(rec.EndedAt)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session %s ended_at: %w", rec.ID, err)
	}
	mode, err := domain.ParseSessionMode(rec.Mode)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session %s: %w", rec.ID, err)
	}
	snapshot := rec.SettingsSnapshot.WithDefaults()
	if err := snapshot.Validate(); err != nil {
		return domain.Session{}, fmt.Errorf("session %s settings_snapshot: %w", rec.ID, err)
	}
	state := rec.State
	if state.FrozenSentenceIDs == nil {
		state.FrozenSentenceIDs = []string{}
	}
	return domain.Session{
		ID:               rec.ID,
		StartedAt:        started,
		EndedAt:          ended,
		Mode:             mode,
		TargetMinutes:    rec.TargetMinutes,
		SettingsSnapshot: snapshot,
		State:            state,
	}, nil
}

// EncodeSettings serializes settings to their stored JSON form.
func EncodeSettings(s domain.Settings) ([]byte, error) {
	s.BoxIntervals = slices.Clone(s.BoxIntervals)
	return json.Marshal(s)
}

// DecodeSettings parses stored settings, filling missing fields from the
// defaults and validating the result.
func DecodeSettings(data []byte) (domain.Settings, error) {
	var s domain.Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	s = s.WithDefaults()
	if err := s.Validate(); err != nil {
		return domain.Settings{}, err
	}
	return s, nil
}

func toPendingAudioRecord(p domain.PendingAudio) pendingAudioRecord {
	return pendingAudioRecord{
		ID:               p.ID,
		Filename:         p.Filename,
		LanguageCode:     p.LanguageCode,
		DetectedLanguage: p.DetectedLanguage,
		UploadedAt:       EncodeTime(p.UploadedAt),
		ProcessedAt:      encodeOptionalTime(p.ProcessedAt),
		Segments:         p.Segments,
		Tags:             p.Tags,
	}
}

func fromPendingAudioRecord(rec pendingAudioRecord) (domain.PendingAudio, error) {
	uploaded, err := DecodeTime(rec.UploadedAt)
	if err != nil {
		return domain.PendingAudio{}, fmt.Errorf("pending audio %s uploadedAt: %w", rec.ID, err)
	}
	processed, err := decodeOptionalTime(rec.ProcessedAt)
	if err != nil {
		return domain.PendingAudio{}, fmt.Errorf("pending audio %s processedAt: %w", rec.ID, err)
	}
	return domain.PendingAudio{
		ID:               rec.ID,
		Filename:         rec.Filename,
		LanguageCode:     rec.LanguageCode,
		DetectedLanguage: rec.DetectedLanguage,
		UploadedAt:       uploaded,
		ProcessedAt:      processed,
		Segments:         rec.Segments,
		Tags:             rec.Tags,
	}, nil
}
