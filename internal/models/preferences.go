package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PreferencesSchemaVersion is bumped whenever UserPreferences changes shape.
const PreferencesSchemaVersion = 1

type UserPreferences struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID        string             `bson:"user_id" json:"user_id"`
	SchemaVersion int                `bson:"schema_version" json:"schema_version"`

	VoiceID         string  `bson:"voice_id,omitempty" json:"voice_id,omitempty"`
	SpeakingRate    float64 `bson:"speaking_rate" json:"speaking_rate"`
	Pitch           float64 `bson:"pitch" json:"pitch"`
	AutoPlayAudio   bool    `bson:"auto_play_audio" json:"auto_play_audio"`
	Language        string  `bson:"language" json:"language"`
	InteractionMode string  `bson:"interaction_mode" json:"interaction_mode"` // voice|text

	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func DefaultPreferences(userID string) UserPreferences {
	return UserPreferences{
		UserID:          userID,
		SchemaVersion:   PreferencesSchemaVersion,
		SpeakingRate:    1.0,
		Pitch:           0,
		AutoPlayAudio:   true,
		Language:        "es-ES",
		InteractionMode: "voice",
	}
}
