package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/volvoxlabs/weft/pkg/api"
)

// SQLiteEventStore stores execution events in SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

// Ensure SQLiteEventStore implements the interface.
var _ EventStore = (*SQLiteEventStore)(nil)

func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			kind TEXT NOT NULL,
			node TEXT NOT NULL DEFAULT '',
			attempt INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, id);
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.ExecutionEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, at, kind, node, attempt, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RunID,
		at.UnixNano(),
		string(ev.Kind),
		ev.Node,
		ev.Attempt,
		ev.Detail,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, runID string) ([]api.ExecutionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, at, kind, node, attempt, detail
		FROM run_events
		WHERE run_id = ?
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.ExecutionEvent
	for rows.Next() {
		var (
			id      string
			atN     int64
			kind    string
			node    string
			attempt int
			detail  string
		)
		if err := rows.Scan(&id, &atN, &kind, &node, &attempt, &detail); err != nil {
			return nil, err
		}
		out = append(out, api.ExecutionEvent{
			RunID:   id,
			At:      time.Unix(0, atN),
			Kind:    api.EventKind(kind),
			Node:    node,
			Attempt: attempt,
			Detail:  detail,
		})
	}
	return out, rows.Err()
}

func (s *SQLiteEventStore) DeleteEvents(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_events WHERE run_id = ?`, runID)
	return err
}
