package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          TEXT PRIMARY KEY,
	event_time  INTEGER NOT NULL,
	request_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	dialect     TEXT NOT NULL,
	model       TEXT NOT NULL,
	direction   TEXT,
	analyzer    TEXT,
	risk_score  REAL,
	message     TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_events_time ON audit_events(event_time);
CREATE INDEX IF NOT EXISTS idx_audit_events_model ON audit_events(model);
`

// SQLiteStorage persists events in a SQLite database with WAL mode, so
// reads from the admin API never block the recorder's writes.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the database at path and
// initializes the schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	// A single writer keeps SQLite happy under WAL.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure audit database: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Append implements Storage.
func (s *SQLiteStorage) Append(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, event_time, request_id, kind, dialect, model, direction, analyzer, risk_score, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Time.UnixNano(), event.RequestID, event.Kind,
		event.Dialect, event.Model, event.Direction, event.Analyzer,
		event.RiskScore, event.Message,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// List implements Storage.
func (s *SQLiteStorage) List(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_time, request_id, kind, dialect, model, direction, analyzer, risk_score, message
		FROM audit_events ORDER BY event_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.RequestID, &e.Kind, &e.Dialect,
			&e.Model, &e.Direction, &e.Analyzer, &e.RiskScore, &e.Message); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Time = time.Unix(0, ts)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune implements Storage.
func (s *SQLiteStorage) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE event_time < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return res.RowsAffected()
}

// Close implements Storage.
func (s *SQLiteStorage) Close() error { return s.db.Close() }
