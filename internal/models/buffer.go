package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusDone       ProcessingStatus = "done"
	StatusFailed     ProcessingStatus = "failed"
)

// RealtimeBuffer is one spoken chunk of a live session, expired by a TTL index.
type RealtimeBuffer struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID  string             `bson:"session_id" json:"session_id"`
	UserID     string             `bson:"user_id" json:"user_id"`
	ChunkIndex int64              `bson:"chunk_index" json:"chunk_index"`

	AudioURL    *string `bson:"audio_url,omitempty" json:"audio_url,omitempty"`
	AudioBase64 *string `bson:"audio_base64,omitempty" json:"audio_base64,omitempty"`
	Language    string  `bson:"language,omitempty" json:"language,omitempty"`

	RelativeSeconds float64 `bson:"relative_seconds" json:"relative_seconds"`

	Transcript    string           `bson:"transcript,omitempty" json:"transcript,omitempty"`
	STTStatus     ProcessingStatus `bson:"stt_status" json:"stt_status"`
	STTConfidence float64          `bson:"stt_confidence,omitempty" json:"stt_confidence,omitempty"`

	ReplyStatus ProcessingStatus `bson:"reply_status" json:"reply_status"`
	Reply       string           `bson:"reply,omitempty" json:"reply,omitempty"`
	UserTurnSeq int64            `bson:"user_turn_seq,omitempty" json:"user_turn_seq,omitempty"`
	AITurnSeq   int64            `bson:"ai_turn_seq,omitempty" json:"ai_turn_seq,omitempty"`

	ProcessingTimeMS int64     `bson:"processing_time_ms,omitempty" json:"processing_time_ms,omitempty"`
	Timestamp        time.Time `bson:"timestamp" json:"timestamp"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}
