package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuevpro/ventas/internal/convlog"
	"github.com/nuevpro/ventas/internal/models"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/utils"
)

func newCompletion(env *testEnv) (CompletionService, GamificationService) {
	game := NewGamificationService(pgrepo.NewStatsRepo(env.db), env.bus, env.log)
	challenges := NewChallengeService(pgrepo.NewChallengeRepo(env.db), game, env.bus, env.log)
	return NewCompletionService(env.sessions, env.evals, game, challenges, env.log), game
}

func TestEndAppliesEvaluationScoreToProgress(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	user := uuid.NewString()
	sess := startWithTurns(t, env, user, "Buenos días, le llamo por su seguro", "Ya tengo uno")
	env.llm.replies = []string{`{"overall_score": 88, "scores": {"rapport": 90, "clarity": 85, "empathy": 88,
		"accuracy": 90, "objection_handling": 86, "closing": 89}}`}

	completion, game := newCompletion(env)
	res, err := completion.End(ctx, user, sess.ID, EndOptions{Evaluate: true})
	require.NoError(t, err)

	assert.Equal(t, models.SessionEnded, res.Session.Status)
	require.NotNil(t, res.Evaluation)
	assert.Equal(t, models.EvaluationAvailable, res.Evaluation.Status)
	assert.Equal(t, 88, res.ScoreApplied)
	require.NotNil(t, res.Progress)
	assert.Equal(t, SessionXP(88, res.Session.DurationSeconds), res.Progress.XPAwarded)

	st, err := game.Stats(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalSessions)
	assert.Equal(t, 88, st.BestScore)

	stored, err := env.sessions.Get(ctx, user, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Score)
	assert.Equal(t, 88, *stored.Score)
	require.NotNil(t, res.Session.Score)
	assert.Equal(t, 88, *res.Session.Score)

	l, err := convlog.Decode(stored.ConversationLog)
	require.NoError(t, err)
	require.NotNil(t, l.Summary)
	assert.Equal(t, 88, l.Summary.Score)
	assert.Equal(t, "evaluation", l.Summary.ScoreSource)
	assert.Len(t, l.Turns, 2)
}

func TestEndWithUnavailableEvaluationKeepsSessionScore(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	user := uuid.NewString()
	sess := startWithTurns(t, env, user, "Hola")
	env.llm.replies = []string{"not json at all"}

	completion, _ := newCompletion(env)
	res, err := completion.End(ctx, user, sess.ID, EndOptions{Summary: models.SessionSummary{Score: ptr(40)}, Evaluate: true})
	require.NoError(t, err)
	require.NotNil(t, res.Evaluation)
	assert.Equal(t, models.EvaluationUnavailable, res.Evaluation.Status)
	assert.Nil(t, res.Evaluation.OverallScore)
	assert.Equal(t, 40, res.ScoreApplied)
	require.NotNil(t, res.Progress)
}

func TestEndTwiceConflicts(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	user := uuid.NewString()
	sess := startWithTurns(t, env, user, "Hola")

	completion, _ := newCompletion(env)
	_, err := completion.End(ctx, user, sess.ID, EndOptions{})
	require.NoError(t, err)
	_, err = completion.End(ctx, user, sess.ID, EndOptions{})
	assert.True(t, utils.IsCode(err, utils.CodeConflict))
}
