package trace

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/sqldb"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxSessions = 100

// timeLayout is fixed width so text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store persists trace data to SQLite or PostgreSQL.
type Store struct {
	db *sqldb.DB
}

// Open connects to a trace database and applies migrations.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqldb.Open(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("trace open: %w", err)
	}
	if err = sqldb.Migrate(ctx, db, migrationFS, "migrations", "trace_schema_version"); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session and prunes old ones.
func (s *Store) CreateSession(ctx context.Context, id, metadata string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trace_sessions (id, metadata, started_at) VALUES (?, ?, ?)`,
		id, metadata, stamp(startedAt),
	)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM trace_sessions WHERE id NOT IN (SELECT id FROM trace_sessions ORDER BY started_at DESC LIMIT ?)`,
		maxSessions,
	)
	return err
}

// EndSession sets the ended_at timestamp.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trace_sessions SET ended_at = ? WHERE id = ?`,
		stamp(endedAt), id,
	)
	return err
}

// CreateRun inserts a new run in the running state.
func (s *Store) CreateRun(ctx context.Context, id, sessionID, trigger string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trace_runs (id, session_id, started_at, trigger_kind, status) VALUES (?, ?, ?, ?, 'running')`,
		id, sessionID, stamp(startedAt), trigger,
	)
	return err
}

// UpdateRun sets the run's final fields.
func (s *Store) UpdateRun(ctx context.Context, id string, durationMs float64, window, feedback, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trace_runs SET duration_ms = ?, window_json = ?, feedback = ?, status = ? WHERE id = ?`,
		durationMs, window, feedback, status, id,
	)
	return err
}

// CreateSpan inserts a span.
func (s *Store) CreateSpan(ctx context.Context, sp Span) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trace_spans (id, run_id, name, started_at, duration_ms, input, output, status, error_msg)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.RunID, sp.Name, stamp(sp.StartedAt),
		sp.DurationMs, sp.Input, sp.Output, sp.Status, sp.Error,
	)
	return err
}

// ListSessions returns sessions ordered newest first, with run counts.
func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]Session, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trace_sessions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.metadata, s.started_at, s.ended_at, COUNT(r.id) AS run_count
		FROM trace_sessions s
		LEFT JOIN trace_runs r ON r.session_id = s.id
		GROUP BY s.id, s.metadata, s.started_at, s.ended_at
		ORDER BY s.started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			sess    Session
			started string
			endedAt sql.NullString
		)
		if err = rows.Scan(&sess.ID, &sess.Metadata, &started, &endedAt, &sess.RunCount); err != nil {
			return nil, 0, err
		}
		if err = fillSessionTimes(&sess, started, endedAt); err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, rows.Err()
}

// GetSession returns a single session with its runs.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, []Run, error) {
	var (
		sess    Session
		started string
		endedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, metadata, started_at, ended_at FROM trace_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Metadata, &started, &endedAt)
	if err != nil {
		return nil, nil, err
	}
	if err = fillSessionTimes(&sess, started, endedAt); err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.session_id, r.started_at, r.duration_ms, r.trigger_kind, r.window_json, r.feedback, r.status,
		       COUNT(sp.id) AS span_count
		FROM trace_runs r
		LEFT JOIN trace_spans sp ON sp.run_id = r.id
		WHERE r.session_id = ?
		GROUP BY r.id, r.session_id, r.started_at, r.duration_ms, r.trigger_kind, r.window_json, r.feedback, r.status
		ORDER BY r.started_at ASC
	`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r       Run
			started string
		)
		if err = rows.Scan(&r.ID, &r.SessionID, &started, &r.DurationMs, &r.Trigger, &r.Window, &r.Feedback, &r.Status, &r.SpanCount); err != nil {
			return nil, nil, err
		}
		if r.StartedAt, err = parseStamp(started); err != nil {
			return nil, nil, err
		}
		runs = append(runs, r)
	}
	return &sess, runs, rows.Err()
}

// GetRun returns a single run with its spans.
func (s *Store) GetRun(ctx context.Context, sessionID, runID string) (*Run, []Span, error) {
	var (
		r       Run
		started string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, started_at, duration_ms, trigger_kind, window_json, feedback, status
		 FROM trace_runs WHERE id = ? AND session_id = ?`,
		runID, sessionID,
	).Scan(&r.ID, &r.SessionID, &started, &r.DurationMs, &r.Trigger, &r.Window, &r.Feedback, &r.Status)
	if err != nil {
		return nil, nil, err
	}
	if r.StartedAt, err = parseStamp(started); err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, name, started_at, duration_ms, input, output, status, error_msg
		 FROM trace_spans WHERE run_id = ? ORDER BY started_at ASC`,
		runID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	spans := []Span{}
	for rows.Next() {
		var sp Span
		if err = rows.Scan(&sp.ID, &sp.RunID, &sp.Name, &started, &sp.DurationMs, &sp.Input, &sp.Output, &sp.Status, &sp.Error); err != nil {
			return nil, nil, err
		}
		if sp.StartedAt, err = parseStamp(started); err != nil {
			return nil, nil, err
		}
		spans = append(spans, sp)
	}
	return &r, spans, rows.Err()
}

func fillSessionTimes(sess *Session, started string, ended sql.NullString) error {
	var err error
	if sess.StartedAt, err = parseStamp(started); err != nil {
		return err
	}
	if ended.Valid {
		t, parseErr := parseStamp(ended.String)
		if parseErr != nil {
			return parseErr
		}
		sess.EndedAt = &t
	}
	return nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseStamp(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse trace timestamp %q: %w", s, err)
	}
	return t, nil
}
