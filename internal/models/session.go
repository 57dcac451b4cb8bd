package models

import (
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

// created -> active on the first turn; active <-> paused; any open state -> ended.
const (
	SessionCreated SessionStatus = "created"
	SessionActive  SessionStatus = "active"
	SessionPaused  SessionStatus = "paused"
	SessionEnded   SessionStatus = "ended"
)

// TrainingSession is one practice conversation. Turns live in conversation_turns;
// ConversationLog holds the versioned JSON document (config + final snapshot).
type TrainingSession struct {
	ID         string  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID     string  `gorm:"column:user_id;type:uuid;index:by_user_started,priority:1;not null" json:"user_id"`
	ScenarioID *string `gorm:"column:scenario_id;type:uuid;index" json:"scenario_id,omitempty"`

	Status SessionStatus `gorm:"column:status;type:text;not null" json:"status"`

	StartedAt     time.Time  `gorm:"column:started_at;index:by_user_started,priority:2,sort:desc" json:"started_at"`
	CompletedAt   *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	PausedAt      *time.Time `gorm:"column:paused_at" json:"paused_at,omitempty"`
	PausedSeconds int64      `gorm:"column:paused_seconds;not null;default:0" json:"paused_seconds"`

	DurationMinutes int   `gorm:"column:duration_minutes;not null;default:0" json:"duration_minutes"`
	DurationSeconds int64 `gorm:"column:duration_seconds;not null;default:0" json:"duration_seconds"`
	Score           *int  `gorm:"column:score" json:"score,omitempty"`

	TurnCount       int64   `gorm:"column:turn_count;not null;default:0" json:"turn_count"`
	LastTurnSeconds float64 `gorm:"column:last_turn_seconds;not null;default:0" json:"last_turn_seconds"`

	ConversationLog datatypes.JSON `gorm:"column:conversation_log;type:jsonb" json:"conversation_log,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (TrainingSession) TableName() string { return "training_sessions" }

func (s *TrainingSession) Ended() bool {
	return s.Status == SessionEnded || s.CompletedAt != nil
}

// SessionConfig is what the user picked when starting; embedded in the log.
type SessionConfig struct {
	ScenarioID        string `json:"scenario_id,omitempty"`
	ClientProfile     string `json:"client_profile,omitempty"` // client emotional profile
	InteractionMode   string `json:"interaction_mode,omitempty"`
	VoiceID           string `json:"voice_id,omitempty"`
	EmotionalState    string `json:"emotional_state,omitempty"`
	ConversationStyle string `json:"conversation_style,omitempty"`
	Language          string `json:"language,omitempty"`
}

// SessionSummary is supplied by the caller when ending a session. Zero fields are
// derived server-side.
type SessionSummary struct {
	DurationSeconds *int64 `json:"duration_seconds,omitempty"`
	Score           *int   `json:"score,omitempty"`
}
