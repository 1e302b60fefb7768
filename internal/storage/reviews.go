package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/recall/internal/domain"
)

// ReviewEvents returns review events in timestamp order. A non-empty
// sentenceID restricts the result to that sentence.
func (db *DB) ReviewEvents(ctx context.Context, sentenceID string) ([]domain.ReviewEvent, error) {
	var rows []string
	var err error
	if sentenceID == "" {
		err = db.conn.SelectContext(ctx, &rows, `SELECT data FROM review_events ORDER BY timestamp, id`)
	} else {
		err = db.conn.SelectContext(ctx, &rows, `
			SELECT data FROM review_events WHERE sentence_id = ? ORDER BY timestamp, id
		`, sentenceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list review events: %w", err)
	}
	out := make([]domain.ReviewEvent, 0, len(rows))
	for _, data := range rows {
		e, err := DecodeReviewEvent([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// SaveReviewEvent appends a review event. Events are never updated.
func (db *DB) SaveReviewEvent(ctx context.Context, e domain.ReviewEvent) error {
	return insertReviewEvent(ctx, db.conn, e)
}

// RecordReview stores a rated sentence together with the event describing
// the rating. Either both are written or neither is.
func (db *DB) RecordReview(ctx context.Context, s domain.Sentence, e domain.ReviewEvent) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := updateSentence(ctx, tx, s); err != nil {
			return err
		}
		return insertReviewEvent(ctx, tx, e)
	})
}

func insertReviewEvent(ctx context.Context, ex sqlx.ExecerContext, e domain.ReviewEvent) error {
	data, err := EncodeReviewEvent(e)
	if err != nil {
		return fmt.Errorf("failed to encode review event %s: %w", e.ID, err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO review_events (id, sentence_id, session_id, timestamp, data)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.SentenceID, e.SessionID, EncodeTime(e.Timestamp), string(data))
	if err != nil {
		return fmt.Errorf("failed to insert review event %s: %w", e.ID, err)
	}
	return nil
}

// DeleteReviewEvents removes every event recorded for a sentence.
func (db *DB) DeleteReviewEvents(ctx context.Context, sentenceID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM review_events WHERE sentence_id = ?`, sentenceID); err != nil {
		return fmt.Errorf("failed to delete review events for sentence %s: %w", sentenceID, err)
	}
	return nil
}
