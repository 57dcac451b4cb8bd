package models

import "time"

type UserStats struct {
	UserID        string     `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Level         int        `gorm:"column:level;not null;default:1" json:"level"`
	XP            int        `gorm:"column:xp;not null;default:0" json:"xp"`
	CurrentStreak int        `gorm:"column:current_streak;not null;default:0" json:"current_streak"`
	LongestStreak int        `gorm:"column:longest_streak;not null;default:0" json:"longest_streak"`
	TotalSessions int        `gorm:"column:total_sessions;not null;default:0" json:"total_sessions"`
	TotalMinutes  int        `gorm:"column:total_minutes;not null;default:0" json:"total_minutes"`
	AverageScore  float64    `gorm:"column:average_score;not null;default:0" json:"average_score"`
	BestScore     int        `gorm:"column:best_score;not null;default:0" json:"best_score"`
	LastSessionAt *time.Time `gorm:"column:last_session_at" json:"last_session_at,omitempty"`
	UpdatedAt     time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (UserStats) TableName() string { return "user_stats" }

// Achievement metrics understood by the gamification service.
const (
	MetricTotalSessions = "total_sessions"
	MetricBestScore     = "best_score"
	MetricStreak        = "streak"
	MetricTotalMinutes  = "total_minutes"
	MetricLevel         = "level"
)

type Achievement struct {
	Code        string    `gorm:"column:code;type:text;primaryKey" json:"code" yaml:"code"`
	Title       string    `gorm:"column:title;type:text;not null" json:"title" yaml:"title"`
	Description string    `gorm:"column:description;type:text" json:"description" yaml:"description"`
	Category    string    `gorm:"column:category;type:text" json:"category" yaml:"category"`
	Metric      string    `gorm:"column:metric;type:text;not null" json:"metric" yaml:"metric"`
	Threshold   int       `gorm:"column:threshold;not null" json:"threshold" yaml:"threshold"`
	XPReward    int       `gorm:"column:xp_reward;not null;default:0" json:"xp_reward" yaml:"xp_reward"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at" yaml:"-"`
}

func (Achievement) TableName() string { return "achievements" }

type UserAchievement struct {
	ID              string     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID          string     `gorm:"column:user_id;type:uuid;uniqueIndex:uniq_user_achievement,priority:1" json:"user_id"`
	AchievementCode string     `gorm:"column:achievement_code;type:text;uniqueIndex:uniq_user_achievement,priority:2" json:"achievement_code"`
	Progress        int        `gorm:"column:progress;not null;default:0" json:"progress"`
	UnlockedAt      *time.Time `gorm:"column:unlocked_at" json:"unlocked_at,omitempty"`
	UpdatedAt       time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (UserAchievement) TableName() string { return "user_achievements" }

type GamificationEventType string

const (
	EventXPAwarded           GamificationEventType = "xp_awarded"
	EventLevelUp             GamificationEventType = "level_up"
	EventAchievementUnlocked GamificationEventType = "achievement_unlocked"
	EventChallengeCompleted  GamificationEventType = "challenge_completed"
)

// GamificationEvent is broadcast on the user's channel; never persisted.
type GamificationEvent struct {
	Type            GamificationEventType `json:"type"`
	UserID          string                `json:"user_id"`
	XP              int                   `json:"xp,omitempty"`
	TotalXP         int                   `json:"total_xp,omitempty"`
	Level           int                   `json:"level,omitempty"`
	AchievementCode string                `json:"achievement_code,omitempty"`
	ChallengeID     string                `json:"challenge_id,omitempty"`
	Timestamp       time.Time             `json:"timestamp"`
}
