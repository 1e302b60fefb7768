package storage

import (
	"context"
	"fmt"

	"github.com/conorfennell/recall/internal/domain"
)

// Settings returns the stored settings, or the configured defaults when
// none have been saved yet.
func (db *DB) Settings(ctx context.Context) (domain.Settings, error) {
	var rows []string
	if err := db.conn.SelectContext(ctx, &rows, `SELECT data FROM settings WHERE id = 1`); err != nil {
		return domain.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	if len(rows) == 0 {
		return db.defaults.WithDefaults(), nil
	}
	return DecodeSettings([]byte(rows[0]))
}

// SaveSettings validates and stores s, replacing any previous value.
func (db *DB) SaveSettings(ctx context.Context, s domain.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := EncodeSettings(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, `
		INSERT INTO settings (id, data) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, string(data)); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
