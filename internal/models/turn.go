package models

import "time"

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

func (s Sender) Valid() bool { return s == SenderUser || s == SenderAI }

// ConversationTurn is append-only; (session_id, seq) is unique and seq is allocated
// under the session row lock.
type ConversationTurn struct {
	ID              string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID       string    `gorm:"column:session_id;type:uuid;uniqueIndex:uniq_session_seq,priority:1;not null" json:"session_id"`
	Seq             int64     `gorm:"column:seq;uniqueIndex:uniq_session_seq,priority:2;not null" json:"seq"`
	Sender          Sender    `gorm:"column:sender;type:text;not null" json:"sender"`
	Content         string    `gorm:"column:content;type:text;not null" json:"content"`
	RelativeSeconds float64   `gorm:"column:relative_seconds;not null" json:"relative_seconds"`
	AudioURL        *string   `gorm:"column:audio_url;type:text" json:"audio_url,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
}

func (ConversationTurn) TableName() string { return "conversation_turns" }
