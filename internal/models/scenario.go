package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type Scenario struct {
	ID                 string         `gorm:"column:id;type:uuid;primaryKey" json:"id" yaml:"id"`
	Title              string         `gorm:"column:title;type:text;not null" json:"title" yaml:"title"`
	Description        string         `gorm:"column:description;type:text" json:"description" yaml:"description"`
	Category           string         `gorm:"column:category;type:text;index" json:"category" yaml:"category"`
	Difficulty         string         `gorm:"column:difficulty;type:text" json:"difficulty" yaml:"difficulty"` // beginner|intermediate|advanced
	PromptInstructions string         `gorm:"column:prompt_instructions;type:text" json:"prompt_instructions" yaml:"prompt_instructions"`
	ClientProfile      string         `gorm:"column:client_profile;type:text" json:"client_profile" yaml:"client_profile"`
	ExpectedOutcomes   datatypes.JSON `gorm:"column:expected_outcomes;type:jsonb" json:"expected_outcomes" yaml:"-"`
	Tags               pq.StringArray `gorm:"column:tags;type:text[]" json:"tags" yaml:"tags"`
	IsActive           bool           `gorm:"column:is_active;not null;default:true" json:"is_active" yaml:"-"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at" yaml:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at" yaml:"-"`
}

func (Scenario) TableName() string { return "scenarios" }

var ScenarioDifficulties = map[string]bool{"beginner": true, "intermediate": true, "advanced": true}
