// Package sqlite provides a SQLite-backed implementation of tracklog.Repository.
//
// WAL mode is enabled on Open so the engine's writes never block readers.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jcmexdev/multihop-creator/internal/coordinator/tracklog"

	// Pure-Go driver, no CGO.
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS track_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,

    -- Not UNIQUE: one row per transition.
    session_id      TEXT        NOT NULL,
    status          TEXT        NOT NULL,
    current_step    TEXT        NOT NULL DEFAULT '',
    multihop_id     TEXT        NOT NULL DEFAULT '',

    -- Instruction JSON. Written on STARTED only.
    payload         TEXT,

    error_messages  TEXT        NOT NULL DEFAULT '[]',
    trace_id        TEXT        NOT NULL DEFAULT '',
    span_id         TEXT        NOT NULL DEFAULT '',

    -- RFC3339 TEXT, SQLite has no datetime type.
    updated_at      TEXT        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_track_logs_session_id ON track_logs(session_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_track_logs_multihop_id ON track_logs(multihop_id);
CREATE INDEX IF NOT EXISTS idx_track_logs_trace_id ON track_logs(trace_id);
`

// Repository is the SQLite implementation of tracklog.Repository.
type Repository struct {
	db *sql.DB
}

var _ tracklog.Repository = (*Repository)(nil)

// Open opens (or creates) the database at path and applies the schema.
//
//	repo, err := sqlite.Open("./data/tracklog.db")
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Save inserts a new entry. It is safe to call concurrently.
func (r *Repository) Save(ctx context.Context, entry *tracklog.Entry) error {
	const q = `
		INSERT INTO track_logs
			(session_id, status, current_step, multihop_id, payload, error_messages, trace_id, span_id, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.SessionID,
		string(entry.Status),
		entry.CurrentStep,
		entry.MultihopID,
		nullableString(entry.Payload),
		entry.ErrorMessages,
		entry.TraceID,
		entry.SpanID,
		formatTime(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save track log for %q: %w", entry.SessionID, err)
	}
	return nil
}

// GetLatest returns the most recent entry for a session.
func (r *Repository) GetLatest(ctx context.Context, sessionID string) (*tracklog.Entry, error) {
	const q = `
		SELECT session_id, status, current_step, multihop_id, COALESCE(payload,''), error_messages,
		       trace_id, span_id, updated_at
		FROM   track_logs
		WHERE  session_id = ?
		ORDER  BY updated_at DESC, id DESC
		LIMIT  1`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, q, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: session %q not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get latest for %q: %w", sessionID, err)
	}
	return entry, nil
}

// History returns every entry of a session in write order.
func (r *Repository) History(ctx context.Context, sessionID string) ([]*tracklog.Entry, error) {
	const q = `
		SELECT session_id, status, current_step, multihop_id, COALESCE(payload,''), error_messages,
		       trace_id, span_id, updated_at
		FROM   track_logs
		WHERE  session_id = ?
		ORDER  BY id ASC`

	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history for %q: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*tracklog.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: history for %q: %w", sessionID, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*tracklog.Entry, error) {
	var entry tracklog.Entry
	var updatedAt string
	err := row.Scan(
		&entry.SessionID,
		&entry.Status,
		&entry.CurrentStep,
		&entry.MultihopID,
		&entry.Payload,
		&entry.ErrorMessages,
		&entry.TraceID,
		&entry.SpanID,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// nullableString stores NULL instead of empty TEXT.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
