package models

import "time"

type Challenge struct {
	ID          string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"column:title;type:text;not null" json:"title"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	ScenarioID  *string   `gorm:"column:scenario_id;type:uuid;index" json:"scenario_id,omitempty"`
	TargetScore int       `gorm:"column:target_score;not null" json:"target_score"`
	StartsAt    time.Time `gorm:"column:starts_at" json:"starts_at"`
	EndsAt      time.Time `gorm:"column:ends_at;index" json:"ends_at"`
	XPReward    int       `gorm:"column:xp_reward;not null;default:0" json:"xp_reward"`
	CreatedBy   string    `gorm:"column:created_by;type:uuid" json:"created_by"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Challenge) TableName() string { return "challenges" }

func (c *Challenge) ActiveAt(t time.Time) bool {
	return !t.Before(c.StartsAt) && t.Before(c.EndsAt)
}

type ChallengeParticipant struct {
	ID          string     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ChallengeID string     `gorm:"column:challenge_id;type:uuid;uniqueIndex:uniq_challenge_user,priority:1" json:"challenge_id"`
	UserID      string     `gorm:"column:user_id;type:uuid;uniqueIndex:uniq_challenge_user,priority:2" json:"user_id"`
	BestScore   int        `gorm:"column:best_score;not null;default:0" json:"best_score"`
	Attempts    int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	JoinedAt    time.Time  `gorm:"column:joined_at" json:"joined_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (ChallengeParticipant) TableName() string { return "challenge_participants" }
