package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/sqldb"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLStore persists to SQLite or PostgreSQL. Nested profile fields are stored
// as JSON text columns.
type SQLStore struct {
	db  *sqldb.DB
	now func() time.Time
}

// OpenSQL connects and migrates.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqldb.Open(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if err = sqldb.Migrate(ctx, db, migrationFS, "migrations", "store_schema_version"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) GetStudent(ctx context.Context, uid string) (*StudentProfile, error) {
	p, err := s.selectStudent(ctx, uid)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get student %s: %w", uid, err)
	}
	if err = s.insertStudent(ctx, NewStudent(uid, s.now()), false); err != nil {
		return nil, fmt.Errorf("create student %s: %w", uid, err)
	}
	p, err = s.selectStudent(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("get student %s: %w", uid, err)
	}
	return p, nil
}

func (s *SQLStore) UpdateStudent(ctx context.Context, uid string, update StudentUpdate) (*StudentProfile, error) {
	p, err := s.GetStudent(ctx, uid)
	if err != nil {
		return nil, err
	}
	update.Apply(p, s.now())
	if err = s.insertStudent(ctx, p, true); err != nil {
		return nil, fmt.Errorf("update student %s: %w", uid, err)
	}
	return p, nil
}

// PutStudent replaces a profile as-is.
func (s *SQLStore) PutStudent(ctx context.Context, p *StudentProfile) error {
	if err := s.insertStudent(ctx, p, true); err != nil {
		return fmt.Errorf("put student %s: %w", p.UID, err)
	}
	return nil
}

func (s *SQLStore) SaveSession(ctx context.Context, data SessionData) error {
	data.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, uid, updated_at, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET uid = excluded.uid, updated_at = excluded.updated_at, data = excluded.data`,
		data.SessionID, data.UID, formatTime(data.UpdatedAt), string(raw),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", data.SessionID, err)
	}
	return nil
}

func (s *SQLStore) GetSession(ctx context.Context, sessionID string) (*SessionData, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE session_id = ?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	var data SessionData
	if err = json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &data, nil
}

func (s *SQLStore) selectStudent(ctx context.Context, uid string) (*StudentProfile, error) {
	var (
		p                         StudentProfile
		created                   string
		updated                   sql.NullString
		skill, prefs, characterJS string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT uid, created_at, updated_at, onboarding_completed, skill_json, preferences_json, character_json
		FROM students WHERE uid = ?`, uid,
	).Scan(&p.UID, &created, &updated, &p.OnboardingCompleted, &skill, &prefs, &characterJS)
	if err != nil {
		return nil, err
	}

	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if updated.Valid {
		t, parseErr := parseTime(updated.String)
		if parseErr != nil {
			return nil, parseErr
		}
		p.UpdatedAt = &t
	}
	for _, col := range []struct {
		raw string
		dst any
	}{
		{skill, &p.Skill},
		{prefs, &p.Preferences},
		{characterJS, &p.Character},
	} {
		if err = json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("decode student column: %w", err)
		}
	}
	return &p, nil
}

// insertStudent writes p. With replace false an existing row is kept.
func (s *SQLStore) insertStudent(ctx context.Context, p *StudentProfile, replace bool) error {
	skill, err := json.Marshal(p.Skill)
	if err != nil {
		return err
	}
	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return err
	}
	character, err := json.Marshal(p.Character)
	if err != nil {
		return err
	}
	var updated sql.NullString
	if p.UpdatedAt != nil {
		updated = sql.NullString{String: formatTime(*p.UpdatedAt), Valid: true}
	}

	conflict := `ON CONFLICT (uid) DO NOTHING`
	if replace {
		conflict = `ON CONFLICT (uid) DO UPDATE SET
			updated_at = excluded.updated_at,
			onboarding_completed = excluded.onboarding_completed,
			skill_json = excluded.skill_json,
			preferences_json = excluded.preferences_json,
			character_json = excluded.character_json`
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO students (uid, created_at, updated_at, onboarding_completed, skill_json, preferences_json, character_json)
		VALUES (?, ?, ?, ?, ?, ?, ?) `+conflict,
		p.UID, formatTime(p.CreatedAt), updated, p.OnboardingCompleted, string(skill), string(prefs), string(character),
	)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
