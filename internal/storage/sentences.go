package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/recall/internal/domain"
)

// Sentences returns every stored sentence, oldest first. A non-empty
// languageCode restricts the result to that language.
func (db *DB) Sentences(ctx context.Context, languageCode string) ([]domain.Sentence, error) {
	var rows []string
	var err error
	if languageCode == "" {
		err = db.conn.SelectContext(ctx, &rows, `SELECT data FROM sentences ORDER BY created_at, id`)
	} else {
		err = db.conn.SelectContext(ctx, &rows, `
			SELECT data FROM sentences WHERE language_code = ? ORDER BY created_at, id
		`, languageCode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sentences: %w", err)
	}
	return decodeSentences(rows)
}

// Sentence retrieves one sentence by id.
func (db *DB) Sentence(ctx context.Context, id string) (domain.Sentence, error) {
	var data string
	if err := db.conn.GetContext(ctx, &data, `SELECT data FROM sentences WHERE id = ?`, id); err != nil {
		return domain.Sentence{}, notFound(err, "sentence", id)
	}
	return DecodeSentence([]byte(data))
}

// SaveSentence inserts a new sentence.
func (db *DB) SaveSentence(ctx context.Context, s domain.Sentence) error {
	return db.insertSentence(ctx, db.conn, s, "", nil)
}

// SaveSourcedSentence inserts a sentence imported from a deck source,
// recording its content hash so later syncs can find it again.
func (db *DB) SaveSourcedSentence(ctx context.Context, s domain.Sentence, contentHash string, sourceID int64) error {
	return db.insertSentence(ctx, db.conn, s, contentHash, &sourceID)
}

func (db *DB) insertSentence(ctx context.Context, ex sqlx.ExecerContext, s domain.Sentence, contentHash string, sourceID *int64) error {
	data, err := EncodeSentence(s)
	if err != nil {
		return fmt.Errorf("failed to encode sentence %s: %w", s.ID, err)
	}
	var hash *string
	if contentHash != "" {
		hash = &contentHash
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO sentences (id, language_code, created_at, content_hash, source_id, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.LanguageCode, EncodeTime(s.CreatedAt), hash, sourceID, string(data))
	if err != nil {
		return fmt.Errorf("failed to insert sentence %s: %w", s.ID, err)
	}
	return nil
}

// UpdateSentence replaces a stored sentence. The content hash and source
// link are left untouched.
func (db *DB) UpdateSentence(ctx context.Context, s domain.Sentence) error {
	return updateSentence(ctx, db.conn, s)
}

func updateSentence(ctx context.Context, ex sqlx.ExecerContext, s domain.Sentence) error {
	data, err := EncodeSentence(s)
	if err != nil {
		return fmt.Errorf("failed to encode sentence %s: %w", s.ID, err)
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE sentences SET language_code = ?, data = ? WHERE id = ?
	`, s.LanguageCode, string(data), s.ID)
	if err != nil {
		return fmt.Errorf("failed to update sentence %s: %w", s.ID, err)
	}
	return requireAffected(res, "sentence", s.ID)
}

// DeleteSentence removes a sentence together with its review events and
// audio blob.
func (db *DB) DeleteSentence(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sentences WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete sentence %s: %w", id, err)
		}
		if err := requireAffected(res, "sentence", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM review_events WHERE sentence_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete review events for sentence %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM audio WHERE sentence_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete audio for sentence %s: %w", id, err)
		}
		return nil
	})
}

// FindSentenceByHash looks a sentence up by content hash. It returns nil
// when no sentence has that hash.
func (db *DB) FindSentenceByHash(ctx context.Context, hash string) (*domain.Sentence, error) {
	var rows []string
	if err := db.conn.SelectContext(ctx, &rows, `
		SELECT data FROM sentences WHERE content_hash = ? LIMIT 1
	`, hash); err != nil {
		return nil, fmt.Errorf("failed to find sentence by hash %s: %w", hash, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	s, err := DecodeSentence([]byte(rows[0]))
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SourcedSentence pairs a sentence with the content hash it was imported under.
type SourcedSentence struct {
	Sentence    domain.Sentence
	ContentHash string
}

// SentencesBySource returns all sentences imported from the given source.
func (db *DB) SentencesBySource(ctx context.Context, sourceID int64) ([]SourcedSentence, error) {
	var rows []struct {
		Hash string `db:"content_hash"`
		Data string `db:"data"`
	}
	if err := db.conn.SelectContext(ctx, &rows, `
		SELECT COALESCE(content_hash, '') AS content_hash, data
		FROM sentences WHERE source_id = ? ORDER BY created_at, id
	`, sourceID); err != nil {
		return nil, fmt.Errorf("failed to get sentences for source ID %d: %w", sourceID, err)
	}
	out := make([]SourcedSentence, 0, len(rows))
	for _, r := range rows {
		s, err := DecodeSentence([]byte(r.Data))
		if err != nil {
			return nil, err
		}
		out = append(out, SourcedSentence{Sentence: s, ContentHash: r.Hash})
	}
	return out, nil
}

func decodeSentences(rows []string) ([]domain.Sentence, error) {
	out := make([]domain.Sentence, 0, len(rows))
	for _, data := range rows {
		s, err := DecodeSentence([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
