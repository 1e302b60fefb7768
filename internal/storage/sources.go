package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SourceType distinguishes local deck directories from git repositories.
type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceGit   SourceType = "git"
)

// Source is a deck location, either a local path or a Git URL.
type Source struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Type        SourceType `json:"type"`
	LastScanned *time.Time `json:"lastScanned,omitempty"`
}

type sourceRow struct {
	ID          int64          `db:"id"`
	Path        string         `db:"path"`
	Type        string         `db:"type"`
	LastScanned sql.NullString `db:"last_scanned"`
}

func (r sourceRow) toSource() (Source, error) {
	s := Source{ID: r.ID, Path: r.Path, Type: SourceType(r.Type)}
	if r.LastScanned.Valid {
		t, err := DecodeTime(r.LastScanned.String)
		if err != nil {
			return Source{}, fmt.Errorf("source %d last_scanned: %w", r.ID, err)
		}
		s.LastScanned = &t
	}
	return s, nil
}

// InsertSource records a new source and returns its ID.
func (db *DB) InsertSource(ctx context.Context, path string, typ SourceType) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (path, type) VALUES (?, ?)
	`, path, string(typ))
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source by its path, or nil when absent.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	var rows []sourceRow
	if err := db.conn.SelectContext(ctx, &rows, `
		SELECT id, path, type, last_scanned FROM sources WHERE path = ?
	`, path); err != nil {
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	s, err := rows[0].toSource()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Sources retrieves all configured sources.
func (db *DB) Sources(ctx context.Context) ([]Source, error) {
	var rows []sourceRow
	if err := db.conn.SelectContext(ctx, &rows, `
		SELECT id, path, type, last_scanned FROM sources ORDER BY id
	`); err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	out := make([]Source, 0, len(rows))
	for _, r := range rows {
		s, err := r.toSource()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// UpdateSourceLastScanned sets the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE sources SET last_scanned = ? WHERE id = ?
	`, EncodeTime(at), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return requireAffected(res, "source", fmt.Sprint(sourceID))
}
