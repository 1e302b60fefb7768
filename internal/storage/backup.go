package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/recall/internal/domain"
)

// Bundle is a complete export of the learner's data.
type Bundle struct {
	Sentences    []domain.Sentence
	ReviewEvents []domain.ReviewEvent
	Sessions     []domain.Session
	Settings     domain.Settings
	AudioFiles   []AudioBlob
}

type audioFileRecord struct {
	SentenceID string `json:"sentenceId"`
	Filename   string `json:"filename"`
	Data       []byte `json:"data"`
}

type bundleRecord struct {
	Sentences    []sentenceRecord    `json:"sentences"`
	ReviewEvents []reviewEventRecord `json:"reviewEvents"`
	Sessions     []sessionRecord     `json:"sessions"`
	Settings     json.RawMessage     `json:"settings"`
	AudioFiles   []audioFileRecord   `json:"audioFiles"`
}

// EncodeBundle serializes an export to JSON. Audio bytes are base64 encoded.
func EncodeBundle(b Bundle) ([]byte, error) {
	settings, err := EncodeSettings(b.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	rec := bundleRecord{
		Sentences:    make([]sentenceRecord, 0, len(b.Sentences)),
		ReviewEvents: make([]reviewEventRecord, 0, len(b.ReviewEvents)),
		Sessions:     make([]sessionRecord, 0, len(b.Sessions)),
		Settings:     settings,
		AudioFiles:   make([]audioFileRecord, 0, len(b.AudioFiles)),
	}
	for _, s := range b.Sentences {
		rec.Sentences = append(rec.Sentences, toSentenceRecord(s))
	}
	for _, e := range b.ReviewEvents {
		rec.ReviewEvents = append(rec.ReviewEvents, toReviewEventRecord(e))
	}
	for _, s := range b.Sessions {
		rec.Sessions = append(rec.Sessions, toSessionRecord(s))
	}
	for _, a := range b.AudioFiles {
		rec.AudioFiles = append(rec.AudioFiles, audioFileRecord{SentenceID: a.SentenceID, Filename: a.Filename, Data: a.Data})
	}
	return json.Marshal(rec)
}

// DecodeBundle parses an export produced by EncodeBundle.
func DecodeBundle(data []byte) (Bundle, error) {
	var rec bundleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Bundle{}, fmt.Errorf("failed to decode bundle: %w", err)
	}
	var b Bundle
	for _, r := range rec.Sentences {
		s, err := fromSentenceRecord(r)
		if err != nil {
			return Bundle{}, err
		}
		b.Sentences = append(b.Sentences, s)
	}
	for _, r := range rec.ReviewEvents {
		e, err := fromReviewEventRecord(r)
		if err != nil {
			return Bundle{}, err
		}
		b.ReviewEvents = append(b.ReviewEvents, e)
	}
	for _, r := range rec.Sessions {
		s, err := fromSessionRecord(r)
		if err != nil {
			return Bundle{}, err
		}
		b.Sessions = append(b.Sessions, s)
	}
	if len(rec.Settings) == 0 || string(rec.Settings) == "null" {
		b.Settings = domain.DefaultSettings()
	} else {
		s, err := DecodeSettings(rec.Settings)
		if err != nil {
			return Bundle{}, err
		}
		b.Settings = s
	}
	for _, a := range rec.AudioFiles {
		filename := a.Filename
		if filename == "" {
			filename = a.SentenceID + ".mp3"
		}
		b.AudioFiles = append(b.AudioFiles, AudioBlob{SentenceID: a.SentenceID, Filename: filename, Data: a.Data})
	}
	return b, nil
}

// ExportAll collects every stored entity.
func (db *DB) ExportAll(ctx context.Context) (Bundle, error) {
	var b Bundle
	var err error
	if b.Sentences, err = db.Sentences(ctx, ""); err != nil {
		return Bundle{}, err
	}
	if b.ReviewEvents, err = db.ReviewEvents(ctx, ""); err != nil {
		return Bundle{}, err
	}
	if b.Sessions, err = db.Sessions(ctx); err != nil {
		return Bundle{}, err
	}
	if b.Settings, err = db.Settings(ctx); err != nil {
		return Bundle{}, err
	}
	if err := db.conn.SelectContext(ctx, &b.AudioFiles, `
		SELECT sentence_id, filename, data FROM audio ORDER BY sentence_id
	`); err != nil {
		return Bundle{}, fmt.Errorf("failed to export audio: %w", err)
	}
	return b, nil
}

// ImportAll replaces all stored data with b. Deck sources are kept, but
// imported sentences are no longer linked to them. Nothing changes if any
// entity fails to store.
func (db *DB) ImportAll(ctx context.Context, b Bundle) error {
	if err := b.Settings.Validate(); err != nil {
		return err
	}
	for _, sess := range b.Sessions {
		if err := sess.SettingsSnapshot.Validate(); err != nil {
			return fmt.Errorf("session %s settings_snapshot: %w", sess.ID, err)
		}
	}
	settings, err := EncodeSettings(b.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := clearAll(ctx, tx); err != nil {
			return err
		}
		for _, s := range b.Sentences {
			if err := db.insertSentence(ctx, tx, s, "", nil); err != nil {
				return err
			}
		}
		for _, e := range b.ReviewEvents {
			if err := insertReviewEvent(ctx, tx, e); err != nil {
				return err
			}
		}
		for _, s := range b.Sessions {
			if err := insertSession(ctx, tx, s); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO settings (id, data) VALUES (1, ?)`, string(settings)); err != nil {
			return fmt.Errorf("failed to import settings: %w", err)
		}
		for _, a := range b.AudioFiles {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO audio (sentence_id, filename, data) VALUES (?, ?, ?)
			`, a.SentenceID, a.Filename, a.Data); err != nil {
				return fmt.Errorf("failed to import audio for sentence %s: %w", a.SentenceID, err)
			}
		}
		return nil
	})
}

// ClearAll deletes every sentence, review event, session, settings row and
// audio blob.
func (db *DB) ClearAll(ctx context.Context) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		return clearAll(ctx, tx)
	})
}

func clearAll(ctx context.Context, tx *sqlx.Tx) error {
	for _, table := range []string{"sentences", "review_events", "sessions", "settings", "audio"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
