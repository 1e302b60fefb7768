package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReviewEvent is the immutable audit record written for every rating.
type ReviewEvent struct {
	ID                   string    `json:"id"`
	SentenceID           string    `json:"sentence_id"`
	SessionID            string    `json:"session_id"`
	Timestamp            time.Time `json:"timestamp"`
	Rating               Rating    `json:"rating"`
	ComputedNextDueAt    time.Time `json:"computed_next_due_at"`
	ComputedIntervalDays int       `json:"computed_interval_days"`
	BoxLevelAfter        int       `json:"box_level_after"`
}

// NewReviewEvent stamps a review event at now.
func NewReviewEvent(sentenceID, sessionID string, rating Rating, nextDueAt time.Time, intervalDays, boxLevelAfter int, now time.Time) ReviewEvent {
	return ReviewEvent{
		ID:                   uuid.NewString(),
		SentenceID:           sentenceID,
		SessionID:            sessionID,
		Timestamp:            now,
		Rating:               rating,
		ComputedNextDueAt:    nextDueAt,
		ComputedIntervalDays: intervalDays,
		BoxLevelAfter:        boxLevelAfter,
	}
}
