// Package store persists student profiles and quest sessions.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by GetSession for unknown session ids.
var ErrNotFound = errors.New("not found")

// QuestStatus is the lifecycle of a quest session.
type QuestStatus string

const (
	QuestIdle    QuestStatus = "idle"
	QuestPlaying QuestStatus = "playing"
	QuestPaused  QuestStatus = "paused"
)

// Defaults for new sessions.
const (
	DefaultQuest = "rhythm"
	DefaultBPM   = 80
)

// Character is the student's avatar.
type Character struct {
	Color     string `json:"color"`
	Accessory string `json:"accessory"`
	EyeStyle  string `json:"eyeStyle"`
}

// Skill holds the coach's running estimate of the student.
type Skill struct {
	TempoStability float64 `json:"tempo_stability"`
	Confidence     float64 `json:"confidence"`
}

// Preferences are chosen by the student during onboarding.
type Preferences struct {
	CoachStyle string `json:"coach_style"`
	Difficulty int    `json:"difficulty"`
}

// StudentProfile is one student.
type StudentProfile struct {
	UID                 string      `json:"uid"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           *time.Time  `json:"updatedAt,omitempty"`
	OnboardingCompleted bool        `json:"onboardingCompleted"`
	Character           Character   `json:"character"`
	Skill               Skill       `json:"skill"`
	Preferences         Preferences `json:"preferences"`
}

// NewStudent returns the profile given to a uid on first sight.
func NewStudent(uid string, now time.Time) *StudentProfile {
	return &StudentProfile{
		UID:         uid,
		CreatedAt:   now.UTC(),
		Character:   Character{Color: "#4FB8FF", Accessory: "none", EyeStyle: "round"},
		Skill:       Skill{TempoStability: 0.5, Confidence: 0.1},
		Preferences: Preferences{CoachStyle: "encouraging", Difficulty: 1},
	}
}

// CharacterUpdate changes the avatar fields that are set.
type CharacterUpdate struct {
	Color     *string `json:"color,omitempty"`
	Accessory *string `json:"accessory,omitempty"`
	EyeStyle  *string `json:"eyeStyle,omitempty"`
}

// PreferencesUpdate changes the preference fields that are set.
type PreferencesUpdate struct {
	CoachStyle *string `json:"coach_style,omitempty" validate:"omitempty,oneof=encouraging strict playful"`
	Difficulty *int    `json:"difficulty,omitempty" validate:"omitempty,min=1,max=5"`
}

// SkillUpdate changes the skill fields that are set.
type SkillUpdate struct {
	TempoStability *float64 `json:"tempo_stability,omitempty" validate:"omitempty,min=0,max=1"`
	Confidence     *float64 `json:"confidence,omitempty" validate:"omitempty,min=0,max=1"`
}

// StudentUpdate is a partial profile update. Nil fields are left unchanged.
type StudentUpdate struct {
	OnboardingCompleted *bool              `json:"onboardingCompleted,omitempty"`
	Character           *CharacterUpdate   `json:"character,omitempty"`
	Skill               *SkillUpdate       `json:"skill,omitempty"`
	Preferences         *PreferencesUpdate `json:"preferences,omitempty"`
}

// Apply merges u into p and stamps UpdatedAt.
func (u StudentUpdate) Apply(p *StudentProfile, now time.Time) {
	if u.OnboardingCompleted != nil {
		p.OnboardingCompleted = *u.OnboardingCompleted
	}
	if c := u.Character; c != nil {
		setIf(&p.Character.Color, c.Color)
		setIf(&p.Character.Accessory, c.Accessory)
		setIf(&p.Character.EyeStyle, c.EyeStyle)
	}
	if s := u.Skill; s != nil {
		setIf(&p.Skill.TempoStability, s.TempoStability)
		setIf(&p.Skill.Confidence, s.Confidence)
	}
	if pr := u.Preferences; pr != nil {
		setIf(&p.Preferences.CoachStyle, pr.CoachStyle)
		setIf(&p.Preferences.Difficulty, pr.Difficulty)
	}
	ts := now.UTC()
	p.UpdatedAt = &ts
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// QuestState is the server-side view of a play session.
type QuestState struct {
	SessionID string      `json:"sessionId"`
	UID       string      `json:"uid"`
	Quest     string      `json:"quest"`
	BPM       float64     `json:"bpm"`
	Status    QuestStatus `json:"status"`
}

// SessionData is what is persisted per session id.
type SessionData struct {
	SessionID  string          `json:"sessionId"`
	UID        string          `json:"uid"`
	Student    *StudentProfile `json:"student,omitempty"`
	QuestState QuestState      `json:"questState"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Store is the persistence contract shared by the file and SQL backends.
type Store interface {
	// GetStudent returns the profile for uid, creating the default one on first sight.
	GetStudent(ctx context.Context, uid string) (*StudentProfile, error)
	UpdateStudent(ctx context.Context, uid string, update StudentUpdate) (*StudentProfile, error)
	// SaveSession upserts data and stamps UpdatedAt.
	SaveSession(ctx context.Context, data SessionData) error
	// GetSession returns ErrNotFound for unknown ids.
	GetSession(ctx context.Context, sessionID string) (*SessionData, error)
	Close() error
}

// Importer can write whole records, used by the seed command.
type Importer interface {
	PutStudent(ctx context.Context, p *StudentProfile) error
	SaveSession(ctx context.Context, data SessionData) error
}

// UpdateQuest loads a session, applies fn to its quest state and saves it.
func UpdateQuest(ctx context.Context, s Store, sessionID string, fn func(*QuestState)) error {
	data, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	fn(&data.QuestState)
	if err = s.SaveSession(ctx, *data); err != nil {
		return fmt.Errorf("save quest %s: %w", sessionID, err)
	}
	return nil
}

// Open builds a store for driver: "file" uses dsn as a data directory,
// "sqlite" and "postgres" use dsn as a connection string.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	if driver == "" || driver == "file" {
		return NewFileStore(dsn)
	}
	return OpenSQL(ctx, driver, dsn)
}
