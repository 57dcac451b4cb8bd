package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/utils"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection: every goroutine sees the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(db))
	return db
}

func newSession(t *testing.T, repo SessionRepository, userID string) *models.TrainingSession {
	t.Helper()
	s := &models.TrainingSession{
		UserID:    userID,
		Status:    models.SessionCreated,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}

func TestAppendTurnAllocatesSequentialSeq(t *testing.T) {
	repo := NewSessionRepo(newTestDB(t))
	ctx := context.Background()
	s := newSession(t, repo, uuid.NewString())

	for i, rel := range []float64{1, 4, 2, 9} {
		turn := &models.ConversationTurn{Sender: models.SenderUser, Content: "hola", RelativeSeconds: rel}
		require.NoError(t, repo.AppendTurn(ctx, s.ID, turn))
		assert.Equal(t, int64(i+1), turn.Seq)
	}

	turns, err := repo.ListTurns(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	// the out-of-order timestamp is lifted to the previous one
	assert.Equal(t, []float64{1, 4, 4, 9}, []float64{turns[0].RelativeSeconds, turns[1].RelativeSeconds, turns[2].RelativeSeconds, turns[3].RelativeSeconds})

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.TurnCount)
	assert.Equal(t, 9.0, got.LastTurnSeconds)
	assert.Equal(t, models.SessionActive, got.Status)
}

func TestAppendTurnConcurrent(t *testing.T) {
	repo := NewSessionRepo(newTestDB(t))
	ctx := context.Background()
	s := newSession(t, repo, uuid.NewString())

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := models.SenderUser
			if i%2 == 1 {
				sender = models.SenderAI
			}
			errs <- repo.AppendTurn(ctx, s.ID, &models.ConversationTurn{Sender: sender, Content: "x", RelativeSeconds: float64(i)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	turns, err := repo.ListTurns(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, turns, n)
	for i, tr := range turns {
		assert.Equal(t, int64(i+1), tr.Seq)
		if i > 0 {
			assert.GreaterOrEqual(t, tr.RelativeSeconds, turns[i-1].RelativeSeconds)
		}
	}
}

func TestAppendTurnUnknownAndEnded(t *testing.T) {
	repo := NewSessionRepo(newTestDB(t))
	ctx := context.Background()

	err := repo.AppendTurn(ctx, uuid.NewString(), &models.ConversationTurn{Sender: models.SenderUser, Content: "x"})
	assert.ErrorIs(t, err, utils.ErrNotFound)

	s := newSession(t, repo, uuid.NewString())
	require.NoError(t, repo.Complete(ctx, s.ID, Completion{CompletedAt: time.Now().UTC(), Score: 70}))

	err = repo.AppendTurn(ctx, s.ID, &models.ConversationTurn{Sender: models.SenderUser, Content: "x"})
	assert.ErrorIs(t, err, utils.ErrSessionEnded)

	turns, _ := repo.ListTurns(ctx, s.ID)
	assert.Empty(t, turns)
}

func TestCompleteTwiceKeepsFirstCompletion(t *testing.T) {
	repo := NewSessionRepo(newTestDB(t))
	ctx := context.Background()
	s := newSession(t, repo, uuid.NewString())

	first := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Complete(ctx, s.ID, Completion{CompletedAt: first, DurationSeconds: 300, DurationMinutes: 5, Score: 80}))
	err := repo.Complete(ctx, s.ID, Completion{CompletedAt: first.Add(time.Hour), Score: 10})
	assert.ErrorIs(t, err, utils.ErrSessionEnded)

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, first.Equal(*got.CompletedAt))
	require.NotNil(t, got.Score)
	assert.Equal(t, 80, *got.Score)
	assert.Equal(t, models.SessionEnded, got.Status)

	assert.ErrorIs(t, repo.Complete(ctx, uuid.NewString(), Completion{CompletedAt: first}), utils.ErrNotFound)
}

func TestApplyScoreOnlyOnEndedSessions(t *testing.T) {
	repo := NewSessionRepo(newTestDB(t))
	ctx := context.Background()
	s := newSession(t, repo, uuid.NewString())

	assert.ErrorIs(t, repo.ApplyScore(ctx, s.ID, 90, datatypes.JSON(`{}`)), utils.ErrNotFound)

	ended := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Complete(ctx, s.ID, Completion{CompletedAt: ended, Score: 57}))
	require.NoError(t, repo.ApplyScore(ctx, s.ID, 88, datatypes.JSON(`{"schema_version":1}`)))

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Score)
	assert.Equal(t, 88, *got.Score)
	assert.JSONEq(t, `{"schema_version":1}`, string(got.ConversationLog))
	require.NotNil(t, got.CompletedAt)
	assert.True(t, ended.Equal(*got.CompletedAt))

	assert.ErrorIs(t, repo.ApplyScore(ctx, uuid.NewString(), 10, nil), utils.ErrNotFound)
}

func TestPauseResume(t *testing.T) {
	repo := NewSessionRepo(newTestDB(t))
	ctx := context.Background()
	s := newSession(t, repo, uuid.NewString())
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	changed, err := repo.Pause(ctx, s.ID, at)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Pause(ctx, s.ID, at.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.Resume(ctx, s.ID, at.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Resume(ctx, s.ID, at.Add(40*time.Second))
	require.NoError(t, err)
	assert.False(t, changed)

	got, _ := repo.GetByID(ctx, s.ID)
	assert.Equal(t, int64(30), got.PausedSeconds)
	assert.Nil(t, got.PausedAt)
	assert.Equal(t, models.SessionActive, got.Status)

	_, err = repo.Pause(ctx, uuid.NewString(), at)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestEvaluationUpsert(t *testing.T) {
	db := newTestDB(t)
	repo := NewEvaluationRepo(db)
	ctx := context.Background()
	sid := uuid.NewString()

	require.NoError(t, repo.Upsert(ctx, &models.SessionEvaluation{SessionID: sid, UserID: "u", Status: models.EvaluationUnavailable, Reason: "malformed"}))

	score := 77
	require.NoError(t, repo.Upsert(ctx, &models.SessionEvaluation{
		SessionID:    sid,
		UserID:       "u",
		Status:       models.EvaluationAvailable,
		OverallScore: &score,
	}))

	got, err := repo.GetBySession(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationAvailable, got.Status)
	require.NotNil(t, got.OverallScore)
	assert.Equal(t, 77, *got.OverallScore)

	_, err = repo.GetBySession(ctx, uuid.NewString())
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestChallengeJoinIsIdempotent(t *testing.T) {
	repo := NewChallengeRepo(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	scenario := uuid.NewString()

	c := &models.Challenge{Title: "Cierre", ScenarioID: &scenario, TargetScore: 80, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, c))

	p1, err := repo.Join(ctx, c.ID, "u1", now)
	require.NoError(t, err)
	p2, err := repo.Join(ctx, c.ID, "u1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)

	_, err = repo.Join(ctx, c.ID, "u2", now)
	require.NoError(t, err)

	ps, chs, err := repo.JoinedActiveForScenario(ctx, "u2", scenario, now)
	require.NoError(t, err)
	require.Len(t, chs, 1)
	require.Len(t, ps, 1)
	ps[0].BestScore = 90
	require.NoError(t, repo.SaveParticipant(ctx, &ps[0]))

	board, err := repo.Leaderboard(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "u2", board[0].UserID)
	assert.Equal(t, 90, board[0].BestScore)

	active, err := repo.ListActive(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStatsApply(t *testing.T) {
	repo := NewStatsRepo(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.UpsertAchievement(ctx, &models.Achievement{Code: "first", Title: "Primera", Metric: models.MetricTotalSessions, Threshold: 1}))

	now := time.Now().UTC()
	out, err := repo.Apply(ctx, "u1", func(s *models.UserStats, unlocked map[string]bool) ([]models.UserAchievement, error) {
		assert.False(t, unlocked["first"])
		s.TotalSessions++
		s.XP += 40
		return []models.UserAchievement{{ID: uuid.NewString(), UserID: "u1", AchievementCode: "first", Progress: 1, UnlockedAt: &now, UpdatedAt: now}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.TotalSessions)

	_, err = repo.Apply(ctx, "u1", func(s *models.UserStats, unlocked map[string]bool) ([]models.UserAchievement, error) {
		assert.True(t, unlocked["first"])
		s.TotalSessions++
		return nil, nil
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalSessions)
	assert.Equal(t, 40, got.XP)

	ua, err := repo.ListUserAchievements(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, ua, 1)
}

func TestKnowledgeRecentAndDelete(t *testing.T) {
	repo := NewKnowledgeRepo(newTestDB(t))
	ctx := context.Background()

	for i, st := range []models.DocumentStatus{models.DocumentReady, models.DocumentFailed, models.DocumentReady} {
		require.NoError(t, repo.Create(ctx, &models.KnowledgeDocument{
			ID:        uuid.NewString(),
			UserID:    "u1",
			Title:     "doc",
			Category:  "pricing",
			Status:    st,
			CreatedAt: time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC),
		}))
	}

	recent, err := repo.Recent(ctx, "u1", 5)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	all, err := repo.ListByUser(ctx, "u1", "pricing")
	require.NoError(t, err)
	require.Len(t, all, 3)

	require.NoError(t, repo.Delete(ctx, all[0].ID))
	assert.ErrorIs(t, repo.Delete(ctx, all[0].ID), utils.ErrNotFound)
}
