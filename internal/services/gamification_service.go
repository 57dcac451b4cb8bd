package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nuevpro/ventas/internal/events"
	"github.com/nuevpro/ventas/internal/metrics"
	"github.com/nuevpro/ventas/internal/models"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/utils"
)

// SessionOutcome is what an ended session contributes to progress.
type SessionOutcome struct {
	UserID          string
	SessionID       string
	ScenarioID      *string
	Score           int
	DurationSeconds int64
	EndedAt         time.Time
}

type GamificationResult struct {
	XPAwarded int                  `json:"xp_awarded"`
	LevelUp   bool                 `json:"level_up"`
	Stats     *models.UserStats    `json:"stats"`
	Unlocked  []models.Achievement `json:"unlocked"`
}

type AchievementProgress struct {
	models.Achievement
	Progress   int        `json:"progress"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// XPGranter lets other features award experience outside of a session.
type XPGranter interface {
	GrantXP(ctx context.Context, userID string, xp int) (*models.UserStats, error)
}

type GamificationService interface {
	XPGranter
	RecordSession(ctx context.Context, o SessionOutcome) (*GamificationResult, error)
	Stats(ctx context.Context, userID string) (*models.UserStats, error)
	Achievements(ctx context.Context) ([]models.Achievement, error)
	UserAchievements(ctx context.Context, userID string) ([]AchievementProgress, error)
}

type gamificationService struct {
	repo pgrepo.StatsRepository
	bus  events.Publisher
	log  *logrus.Logger
	now  func() time.Time
}

func NewGamificationService(repo pgrepo.StatsRepository, bus events.Publisher, log *logrus.Logger) GamificationService {
	if log == nil {
		log = logrus.New()
	}
	return &gamificationService{repo: repo, bus: bus, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// SessionXP is 10 + score/2 + minutes practiced, with minutes capped at 30.
func SessionXP(score int, durationSeconds int64) int {
	minutes := int(durationSeconds / 60)
	if minutes < 0 {
		minutes = 0
	}
	return 10 + metrics.Clamp(score)/2 + min(minutes, 30)
}

// LevelFor is 1 + floor(sqrt(xp/100)).
func LevelFor(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return 1 + int(math.Floor(math.Sqrt(float64(xp)/100)))
}

// NextStreak compares UTC calendar days: a session the day after the last one
// extends the streak, the same day keeps it, anything else restarts at 1.
func NextStreak(last *time.Time, now time.Time, current int) int {
	if last == nil || current <= 0 {
		return 1
	}
	ly, lm, ld := last.UTC().Date()
	lastDay := time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC)
	ny, nm, nd := now.UTC().Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)

	switch today.Sub(lastDay) {
	case 0:
		return current
	case 24 * time.Hour:
		return current + 1
	default:
		return 1
	}
}

func metricValue(s *models.UserStats, metric string) int {
	switch metric {
	case models.MetricTotalSessions:
		return s.TotalSessions
	case models.MetricBestScore:
		return s.BestScore
	case models.MetricStreak:
		return s.CurrentStreak
	case models.MetricTotalMinutes:
		return s.TotalMinutes
	case models.MetricLevel:
		return s.Level
	default:
		return 0
	}
}

func (s *gamificationService) RecordSession(ctx context.Context, o SessionOutcome) (*GamificationResult, error) {
	const op = "GamificationService.RecordSession"

	if o.UserID == "" {
		return nil, utils.Unauthenticated(op)
	}
	catalog, err := s.repo.ListAchievements(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load achievements", err)
	}
	if o.EndedAt.IsZero() {
		o.EndedAt = s.now()
	}
	score := metrics.Clamp(o.Score)
	res := &GamificationResult{Unlocked: []models.Achievement{}}

	stats, err := s.repo.Apply(ctx, o.UserID, func(st *models.UserStats, unlocked map[string]bool) ([]models.UserAchievement, error) {
		prevLevel := max(st.Level, 1)

		st.CurrentStreak = NextStreak(st.LastSessionAt, o.EndedAt, st.CurrentStreak)
		st.LongestStreak = max(st.LongestStreak, st.CurrentStreak)
		st.AverageScore = (st.AverageScore*float64(st.TotalSessions) + float64(score)) / float64(st.TotalSessions+1)
		st.AverageScore = math.Round(st.AverageScore*100) / 100
		st.TotalSessions++
		st.TotalMinutes += int(max(o.DurationSeconds, 0) / 60)
		st.BestScore = max(st.BestScore, score)
		ended := o.EndedAt
		st.LastSessionAt = &ended

		res.XPAwarded = SessionXP(score, o.DurationSeconds)
		st.XP += res.XPAwarded
		st.Level = LevelFor(st.XP)

		var changes []models.UserAchievement
		for _, a := range catalog {
			if unlocked[a.Code] {
				continue
			}
			progress := metricValue(st, a.Metric)
			ua := models.UserAchievement{
				ID:              uuid.NewString(),
				UserID:          o.UserID,
				AchievementCode: a.Code,
				Progress:        min(progress, a.Threshold),
				UpdatedAt:       o.EndedAt,
			}
			if progress >= a.Threshold {
				ua.UnlockedAt = &ended
				st.XP += a.XPReward
				res.XPAwarded += a.XPReward
				res.Unlocked = append(res.Unlocked, a)
			}
			changes = append(changes, ua)
		}
		st.Level = LevelFor(st.XP)
		res.LevelUp = st.Level > prevLevel
		return changes, nil
	})
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to update stats", err)
	}
	res.Stats = stats

	s.publish(ctx, models.GamificationEvent{Type: models.EventXPAwarded, UserID: o.UserID, XP: res.XPAwarded, TotalXP: stats.XP, Level: stats.Level})
	if res.LevelUp {
		s.publish(ctx, models.GamificationEvent{Type: models.EventLevelUp, UserID: o.UserID, TotalXP: stats.XP, Level: stats.Level})
	}
	for _, a := range res.Unlocked {
		s.publish(ctx, models.GamificationEvent{Type: models.EventAchievementUnlocked, UserID: o.UserID, XP: a.XPReward, AchievementCode: a.Code})
	}
	return res, nil
}

func (s *gamificationService) GrantXP(ctx context.Context, userID string, xp int) (*models.UserStats, error) {
	const op = "GamificationService.GrantXP"

	if xp <= 0 {
		return s.Stats(ctx, userID)
	}
	var levelUp bool
	stats, err := s.repo.Apply(ctx, userID, func(st *models.UserStats, _ map[string]bool) ([]models.UserAchievement, error) {
		prev := max(st.Level, 1)
		st.XP += xp
		st.Level = LevelFor(st.XP)
		levelUp = st.Level > prev
		return nil, nil
	})
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to grant xp", err)
	}
	s.publish(ctx, models.GamificationEvent{Type: models.EventXPAwarded, UserID: userID, XP: xp, TotalXP: stats.XP, Level: stats.Level})
	if levelUp {
		s.publish(ctx, models.GamificationEvent{Type: models.EventLevelUp, UserID: userID, TotalXP: stats.XP, Level: stats.Level})
	}
	return stats, nil
}

func (s *gamificationService) Stats(ctx context.Context, userID string) (*models.UserStats, error) {
	const op = "GamificationService.Stats"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}
	st, err := s.repo.Get(ctx, userID)
	if errors.Is(err, utils.ErrNotFound) {
		return &models.UserStats{UserID: userID, Level: 1}, nil
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load stats", err)
	}
	return st, nil
}

func (s *gamificationService) Achievements(ctx context.Context) ([]models.Achievement, error) {
	rows, err := s.repo.ListAchievements(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, "GamificationService.Achievements", "failed to list achievements", err)
	}
	return rows, nil
}

func (s *gamificationService) UserAchievements(ctx context.Context, userID string) ([]AchievementProgress, error) {
	const op = "GamificationService.UserAchievements"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}
	catalog, err := s.repo.ListAchievements(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list achievements", err)
	}
	owned, err := s.repo.ListUserAchievements(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list user achievements", err)
	}
	byCode := make(map[string]models.UserAchievement, len(owned))
	for _, ua := range owned {
		byCode[ua.AchievementCode] = ua
	}

	out := make([]AchievementProgress, 0, len(catalog))
	for _, a := range catalog {
		p := AchievementProgress{Achievement: a}
		if ua, ok := byCode[a.Code]; ok {
			p.Progress = ua.Progress
			p.UnlockedAt = ua.UnlockedAt
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *gamificationService) publish(ctx context.Context, ev models.GamificationEvent) {
	if s.bus == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	if err := s.bus.Publish(ctx, events.UserChannel(ev.UserID), ev); err != nil {
		s.log.WithError(err).WithField("user_id", ev.UserID).Warn("gamification event not published")
	}
}
