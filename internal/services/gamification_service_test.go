package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuevpro/ventas/internal/events"
	"github.com/nuevpro/ventas/internal/models"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/utils"
)

func TestSessionXP(t *testing.T) {
	assert.Equal(t, 10, SessionXP(0, 0))
	assert.Equal(t, 10+40+10, SessionXP(80, 600))
	assert.Equal(t, 10+50+30, SessionXP(150, 7200))
	assert.Equal(t, 10, SessionXP(-5, -60))
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, 1, LevelFor(0))
	assert.Equal(t, 1, LevelFor(99))
	assert.Equal(t, 2, LevelFor(100))
	assert.Equal(t, 2, LevelFor(399))
	assert.Equal(t, 3, LevelFor(400))
	assert.Equal(t, 1, LevelFor(-10))
}

func TestNextStreak(t *testing.T) {
	day := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, 1, NextStreak(nil, day, 0))
	assert.Equal(t, 4, NextStreak(&day, day.Add(10*time.Minute), 4))
	assert.Equal(t, 5, NextStreak(&day, day.Add(2*time.Hour), 4))
	assert.Equal(t, 1, NextStreak(&day, day.Add(49*time.Hour), 4))
	assert.Equal(t, 1, NextStreak(&day, day.Add(24*time.Hour), 0))
}

func TestRecordSessionUnlocksAndLevelsUp(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := pgrepo.NewStatsRepo(db)
	require.NoError(t, repo.UpsertAchievement(ctx, &models.Achievement{Code: "first", Title: "Primera", Category: "a", Metric: models.MetricTotalSessions, Threshold: 1, XPReward: 50}))
	require.NoError(t, repo.UpsertAchievement(ctx, &models.Achievement{Code: "high", Title: "Alta", Category: "b", Metric: models.MetricBestScore, Threshold: 90, XPReward: 100}))

	bus := events.NewMemoryBus()
	svc := NewGamificationService(repo, bus, quietLogger())

	day1 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	res, err := svc.RecordSession(ctx, SessionOutcome{UserID: "u1", SessionID: "s1", Score: 80, DurationSeconds: 600, EndedAt: day1})
	require.NoError(t, err)
	assert.Equal(t, 60+50, res.XPAwarded)
	assert.True(t, res.LevelUp)
	require.Len(t, res.Unlocked, 1)
	assert.Equal(t, "first", res.Unlocked[0].Code)
	assert.Equal(t, 2, res.Stats.Level)
	assert.Equal(t, 1, res.Stats.CurrentStreak)
	assert.Len(t, bus.Published(events.UserChannel("u1")), 3)

	res, err = svc.RecordSession(ctx, SessionOutcome{UserID: "u1", SessionID: "s2", Score: 95, EndedAt: day1.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 57+100, res.XPAwarded)
	assert.False(t, res.LevelUp)
	require.Len(t, res.Unlocked, 1)
	assert.Equal(t, "high", res.Unlocked[0].Code)

	st, err := svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalSessions)
	assert.Equal(t, 267, st.XP)
	assert.Equal(t, 2, st.CurrentStreak)
	assert.Equal(t, 95, st.BestScore)
	assert.InDelta(t, 87.5, st.AverageScore, 0.001)

	progress, err := svc.UserAchievements(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, progress, 2)
	for _, p := range progress {
		assert.NotNil(t, p.UnlockedAt, p.Code)
	}
}

func TestStatsDefaultsForNewUser(t *testing.T) {
	svc := NewGamificationService(pgrepo.NewStatsRepo(newTestDB(t)), nil, quietLogger())

	st, err := svc.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Level)
	assert.Zero(t, st.XP)

	_, err = svc.Stats(context.Background(), "")
	assert.True(t, utils.IsCode(err, utils.CodeUnauthorized))
}

func TestGrantXPPublishesLevelUp(t *testing.T) {
	bus := events.NewMemoryBus()
	svc := NewGamificationService(pgrepo.NewStatsRepo(newTestDB(t)), bus, quietLogger())

	st, err := svc.GrantXP(context.Background(), "u1", 400)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Level)
	assert.Len(t, bus.Published(events.UserChannel("u1")), 2)

	st, err = svc.GrantXP(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, 400, st.XP)
}
