package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuevpro/ventas/internal/events"
	"github.com/nuevpro/ventas/internal/models"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/utils"
)

type recordingGranter struct {
	mu     sync.Mutex
	grants map[string]int
}

func (g *recordingGranter) GrantXP(_ context.Context, userID string, xp int) (*models.UserStats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.grants == nil {
		g.grants = map[string]int{}
	}
	g.grants[userID] += xp
	return &models.UserStats{UserID: userID, XP: g.grants[userID]}, nil
}

func newChallengeSvc(t *testing.T) (ChallengeService, *recordingGranter, *events.MemoryBus) {
	t.Helper()
	g := &recordingGranter{}
	bus := events.NewMemoryBus()
	return NewChallengeService(pgrepo.NewChallengeRepo(newTestDB(t)), g, bus, quietLogger()), g, bus
}

func TestCreateChallengeValidation(t *testing.T) {
	svc, _, _ := newChallengeSvc(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := svc.Create(ctx, "", ChallengeInput{Title: "x", EndsAt: now.Add(time.Hour)})
	assert.True(t, utils.IsCode(err, utils.CodeUnauthorized))

	bad := []ChallengeInput{
		{Title: " ", EndsAt: now.Add(time.Hour)},
		{Title: "x", TargetScore: 101, EndsAt: now.Add(time.Hour)},
		{Title: "x", StartsAt: now, EndsAt: now.Add(-time.Minute)},
		{Title: "x", XPReward: -1, EndsAt: now.Add(time.Hour)},
		{Title: "x", ScenarioID: ptr("nope"), EndsAt: now.Add(time.Hour)},
	}
	for _, in := range bad {
		_, err := svc.Create(ctx, "admin", in)
		assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument), "%+v", in)
	}
}

func TestChallengeCompletesOnceAndGrantsXP(t *testing.T) {
	svc, granter, bus := newChallengeSvc(t)
	ctx := context.Background()
	now := time.Now().UTC()
	scenarioID := uuid.NewString()

	c, err := svc.Create(ctx, "admin", ChallengeInput{
		Title:       "Cierre de mes",
		ScenarioID:  &scenarioID,
		TargetScore: 70,
		StartsAt:    now.Add(-time.Hour),
		EndsAt:      now.Add(time.Hour),
		XPReward:    30,
	})
	require.NoError(t, err)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	_, err = svc.Join(ctx, "u1", c.ID)
	require.NoError(t, err)
	// joining twice keeps one participation
	_, err = svc.Join(ctx, "u1", c.ID)
	require.NoError(t, err)

	outcome := SessionOutcome{UserID: "u1", ScenarioID: &scenarioID, EndedAt: now}

	outcome.Score = 60
	done, err := svc.RecordScore(ctx, outcome)
	require.NoError(t, err)
	assert.Empty(t, done)

	outcome.Score = 75
	done, err = svc.RecordScore(ctx, outcome)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, c.ID, done[0].ID)
	assert.Equal(t, 30, granter.grants["u1"])
	assert.Len(t, bus.Published(events.UserChannel("u1")), 1)

	outcome.Score = 90
	done, err = svc.RecordScore(ctx, outcome)
	require.NoError(t, err)
	assert.Empty(t, done)
	assert.Equal(t, 30, granter.grants["u1"])

	board, err := svc.Leaderboard(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, 90, board[0].BestScore)
	assert.Equal(t, 3, board[0].Attempts)
}

func TestRecordScoreIgnoresFreePractice(t *testing.T) {
	svc, _, _ := newChallengeSvc(t)
	done, err := svc.RecordScore(context.Background(), SessionOutcome{UserID: "u1", Score: 100})
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestJoinErrors(t *testing.T) {
	svc, _, _ := newChallengeSvc(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := svc.Join(ctx, "u1", "not-a-uuid")
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
	_, err = svc.Join(ctx, "u1", uuid.NewString())
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))

	past, err := svc.Create(ctx, "admin", ChallengeInput{Title: "Old", StartsAt: now.Add(-2 * time.Hour), EndsAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = svc.Join(ctx, "u1", past.ID)
	assert.True(t, utils.IsCode(err, utils.CodeConflict))

	_, err = svc.Leaderboard(ctx, uuid.NewString())
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}
