package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	studentsFile = "students.json"
	sessionsFile = "sessions.json"
)

// FileStore keeps everything in memory and rewrites two JSON files in dir on
// every change.
type FileStore struct {
	dir string
	now func() time.Time

	mu       sync.Mutex
	students map[string]*StudentProfile
	sessions map[string]*SessionData
}

// NewFileStore loads dir, creating it if needed. Missing or unreadable files
// start empty.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &FileStore{
		dir:      dir,
		now:      time.Now,
		students: map[string]*StudentProfile{},
		sessions: map[string]*SessionData{},
	}
	if err := readJSON(filepath.Join(dir, studentsFile), &s.students); err != nil {
		slog.Warn("file store students reset", "dir", dir, "error", err)
		s.students = map[string]*StudentProfile{}
	}
	if err := readJSON(filepath.Join(dir, sessionsFile), &s.sessions); err != nil {
		slog.Warn("file store sessions reset", "dir", dir, "error", err)
		s.sessions = map[string]*SessionData{}
	}
	return s, nil
}

func (s *FileStore) GetStudent(_ context.Context, uid string) (*StudentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.students[uid]
	if !ok {
		p = NewStudent(uid, s.now())
		s.students[uid] = p
		if err := s.flushStudents(); err != nil {
			return nil, err
		}
	}
	out := *p
	return &out, nil
}

func (s *FileStore) UpdateStudent(_ context.Context, uid string, update StudentUpdate) (*StudentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.students[uid]
	if !ok {
		p = NewStudent(uid, s.now())
	}
	next := *p
	update.Apply(&next, s.now())
	s.students[uid] = &next
	if err := s.flushStudents(); err != nil {
		return nil, err
	}
	out := next
	return &out, nil
}

// PutStudent replaces a profile as-is.
func (s *FileStore) PutStudent(_ context.Context, p *StudentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.students[p.UID] = &cp
	return s.flushStudents()
}

func (s *FileStore) SaveSession(_ context.Context, data SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data.UpdatedAt = s.now().UTC()
	s.sessions[data.SessionID] = &data
	return s.flushSessions()
}

func (s *FileStore) GetSession(_ context.Context, sessionID string) (*SessionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	out := *d
	return &out, nil
}

// Snapshot returns copies of all records, for export.
func (s *FileStore) Snapshot() ([]StudentProfile, []SessionData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	students := make([]StudentProfile, 0, len(s.students))
	for _, p := range s.students {
		students = append(students, *p)
	}
	sessions := make([]SessionData, 0, len(s.sessions))
	for _, d := range s.sessions {
		sessions = append(sessions, *d)
	}
	return students, sessions
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) flushStudents() error {
	return writeJSON(filepath.Join(s.dir, studentsFile), s.students)
}

func (s *FileStore) flushSessions() error {
	return writeJSON(filepath.Join(s.dir, sessionsFile), s.sessions)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON replaces path atomically via a temp file in the same directory.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
