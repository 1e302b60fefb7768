package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/session"
)

// Sessions returns every session, most recent first.
func (db *DB) Sessions(ctx context.Context) ([]domain.Session, error) {
	var rows []string
	if err := db.conn.SelectContext(ctx, &rows, `SELECT data FROM sessions ORDER BY started_at DESC, id`); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]domain.Session, 0, len(rows))
	for _, data := range rows {
		s, err := DecodeSession([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Session retrieves one session by id.
func (db *DB) Session(ctx context.Context, id string) (domain.Session, error) {
	return getSession(ctx, db.conn, id)
}

func getSession(ctx context.Context, q sqlx.QueryerContext, id string) (domain.Session, error) {
	var data string
	if err := sqlx.GetContext(ctx, q, &data, `SELECT data FROM sessions WHERE id = ?`, id); err != nil {
		return domain.Session{}, notFound(err, "session", id)
	}
	return DecodeSession([]byte(data))
}

// SaveSession inserts a new session.
func (db *DB) SaveSession(ctx context.Context, s domain.Session) error {
	return insertSession(ctx, db.conn, s)
}

func insertSession(ctx context.Context, ex sqlx.ExecerContext, s domain.Session) error {
	data, err := EncodeSession(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, ended_at, is_complete, data)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID, EncodeTime(s.StartedAt), encodeOptionalTime(s.EndedAt), s.State.IsComplete, string(data))
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	return nil
}

// UpdateSession replaces a stored session.
func (db *DB) UpdateSession(ctx context.Context, s domain.Session) error {
	return updateSession(ctx, db.conn, s)
}

func updateSession(ctx context.Context, ex sqlx.ExecerContext, s domain.Session) error {
	data, err := EncodeSession(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, is_complete = ?, data = ? WHERE id = ?
	`, encodeOptionalTime(s.EndedAt), s.State.IsComplete, string(data), s.ID)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", s.ID, err)
	}
	return requireAffected(res, "session", s.ID)
}

// UpdateSessionState merges a partial state into the stored session and
// returns the result.
func (db *DB) UpdateSessionState(ctx context.Context, id string, u session.StateUpdate) (domain.Session, error) {
	var out domain.Session
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		current, err := getSession(ctx, tx, id)
		if err != nil {
			return err
		}
		out = session.UpdateState(current, u)
		return updateSession(ctx, tx, out)
	})
	return out, err
}

// IncompleteSession returns the most recently started session that has
// neither ended nor completed, or nil when there is none.
func (db *DB) IncompleteSession(ctx context.Context) (*domain.Session, error) {
	var rows []string
	if err := db.conn.SelectContext(ctx, &rows, `
		SELECT data FROM sessions
		WHERE is_complete = 0 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`); err != nil {
		return nil, fmt.Errorf("failed to find incomplete session: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	s, err := DecodeSession([]byte(rows[0]))
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession removes a session. Its review events are kept.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return requireAffected(res, "session", id)
}
