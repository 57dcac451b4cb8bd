package models

import (
	"time"

	"gorm.io/datatypes"
)

type EvaluationStatus string

const (
	EvaluationAvailable   EvaluationStatus = "available"
	EvaluationUnavailable EvaluationStatus = "unavailable"
)

// Evaluation dimensions, each scored 0-100.
const (
	DimRapport           = "rapport"
	DimClarity           = "clarity"
	DimEmpathy           = "empathy"
	DimAccuracy          = "accuracy"
	DimObjectionHandling = "objection_handling"
	DimClosing           = "closing"
)

var EvaluationDimensions = []string{DimRapport, DimClarity, DimEmpathy, DimAccuracy, DimObjectionHandling, DimClosing}

type SessionEvaluation struct {
	SessionID string           `gorm:"column:session_id;type:uuid;primaryKey" json:"session_id"`
	UserID    string           `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Status    EvaluationStatus `gorm:"column:status;type:text;not null" json:"status"`
	Reason    string           `gorm:"column:reason;type:text" json:"reason,omitempty"`

	OverallScore     *int                               `gorm:"column:overall_score" json:"overall_score,omitempty"`
	Scores           datatypes.JSONType[map[string]int] `gorm:"column:scores;type:jsonb" json:"scores"`
	Strengths        datatypes.JSONSlice[string]        `gorm:"column:strengths;type:jsonb" json:"strengths"`
	Improvements     datatypes.JSONSlice[string]        `gorm:"column:improvements;type:jsonb" json:"improvements"`
	SpecificFeedback string                             `gorm:"column:specific_feedback;type:text" json:"specific_feedback,omitempty"`
	Model            string                             `gorm:"column:model;type:text" json:"model,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (SessionEvaluation) TableName() string { return "session_evaluations" }
