package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conorfennell/recall/internal/domain"
)

// AudioBlob is the stored target-language recording for a sentence.
type AudioBlob struct {
	SentenceID string `db:"sentence_id"`
	Filename   string `db:"filename"`
	Data       []byte `db:"data"`
}

// SaveAudio stores or replaces the audio for a sentence.
func (db *DB) SaveAudio(ctx context.Context, blob AudioBlob) error {
	if _, err := db.conn.ExecContext(ctx, `
		INSERT INTO audio (sentence_id, filename, data) VALUES (?, ?, ?)
		ON CONFLICT(sentence_id) DO UPDATE SET filename = excluded.filename, data = excluded.data
	`, blob.SentenceID, blob.Filename, blob.Data); err != nil {
		return fmt.Errorf("failed to save audio for sentence %s: %w", blob.SentenceID, err)
	}
	return nil
}

// Audio retrieves the audio stored for a sentence.
func (db *DB) Audio(ctx context.Context, sentenceID string) (AudioBlob, error) {
	var blob AudioBlob
	if err := db.conn.GetContext(ctx, &blob, `
		SELECT sentence_id, filename, data FROM audio WHERE sentence_id = ?
	`, sentenceID); err != nil {
		return AudioBlob{}, notFound(err, "audio", sentenceID)
	}
	return blob, nil
}

// HasAudio reports whether audio is stored for a sentence.
func (db *DB) HasAudio(ctx context.Context, sentenceID string) (bool, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM audio WHERE sentence_id = ?`, sentenceID); err != nil {
		return false, fmt.Errorf("failed to check audio for sentence %s: %w", sentenceID, err)
	}
	return n > 0, nil
}

// DeleteAudio removes the audio for a sentence. Missing audio is not an error.
func (db *DB) DeleteAudio(ctx context.Context, sentenceID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM audio WHERE sentence_id = ?`, sentenceID); err != nil {
		return fmt.Errorf("failed to delete audio for sentence %s: %w", sentenceID, err)
	}
	return nil
}

// SavePendingAudio stores an uploaded recording in the inbox.
func (db *DB) SavePendingAudio(ctx context.Context, p domain.PendingAudio, data []byte) error {
	meta, err := json.Marshal(toPendingAudioRecord(p))
	if err != nil {
		return fmt.Errorf("failed to encode pending audio %s: %w", p.ID, err)
	}
	if _, err := db.conn.ExecContext(ctx, `
		INSERT INTO pending_audio (id, language_code, uploaded_at, metadata, data)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.LanguageCode, EncodeTime(p.UploadedAt), string(meta), data); err != nil {
		return fmt.Errorf("failed to insert pending audio %s: %w", p.ID, err)
	}
	return nil
}

// PendingAudio retrieves an inbox recording and its bytes.
func (db *DB) PendingAudio(ctx context.Context, id string) (domain.PendingAudio, []byte, error) {
	var row struct {
		Metadata string `db:"metadata"`
		Data     []byte `db:"data"`
	}
	if err := db.conn.GetContext(ctx, &row, `SELECT metadata, data FROM pending_audio WHERE id = ?`, id); err != nil {
		return domain.PendingAudio{}, nil, notFound(err, "pending audio", id)
	}
	p, err := decodePendingAudio(row.Metadata)
	if err != nil {
		return domain.PendingAudio{}, nil, err
	}
	return p, row.Data, nil
}

// PendingAudioList returns inbox metadata, newest upload first. A non-empty
// languageCode restricts the result to that language.
func (db *DB) PendingAudioList(ctx context.Context, languageCode string) ([]domain.PendingAudio, error) {
	var rows []string
	var err error
	if languageCode == "" {
		err = db.conn.SelectContext(ctx, &rows, `SELECT metadata FROM pending_audio ORDER BY uploaded_at DESC`)
	} else {
		err = db.conn.SelectContext(ctx, &rows, `
			SELECT metadata FROM pending_audio WHERE language_code = ? ORDER BY uploaded_at DESC
		`, languageCode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list pending audio: %w", err)
	}
	out := make([]domain.PendingAudio, 0, len(rows))
	for _, meta := range rows {
		p, err := decodePendingAudio(meta)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// UpdatePendingAudio replaces the metadata of an inbox recording, for
// example after transcription. The audio bytes are unchanged.
func (db *DB) UpdatePendingAudio(ctx context.Context, p domain.PendingAudio) error {
	meta, err := json.Marshal(toPendingAudioRecord(p))
	if err != nil {
		return fmt.Errorf("failed to encode pending audio %s: %w", p.ID, err)
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE pending_audio SET language_code = ?, metadata = ? WHERE id = ?
	`, p.LanguageCode, string(meta), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update pending audio %s: %w", p.ID, err)
	}
	return requireAffected(res, "pending audio", p.ID)
}

// DeletePendingAudio removes an inbox recording.
func (db *DB) DeletePendingAudio(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM pending_audio WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending audio %s: %w", id, err)
	}
	return requireAffected(res, "pending audio", id)
}

func decodePendingAudio(meta string) (domain.PendingAudio, error) {
	var rec pendingAudioRecord
	if err := json.Unmarshal([]byte(meta), &rec); err != nil {
		return domain.PendingAudio{}, fmt.Errorf("failed to decode pending audio: %w", err)
	}
	return fromPendingAudioRecord(rec)
}
