package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nuevpro/ventas/internal/models"
)

type EndOptions struct {
	Summary  models.SessionSummary
	Evaluate bool
}

// EndResult groups what a session end produced. Follow-up pieces are nil when
// their step failed; the session itself stays ended.
type EndResult struct {
	Session      *models.TrainingSession   `json:"session"`
	Evaluation   *models.SessionEvaluation `json:"evaluation,omitempty"`
	Progress     *GamificationResult       `json:"progress,omitempty"`
	Challenges   []models.Challenge        `json:"completed_challenges,omitempty"`
	ScoreApplied int                       `json:"score_applied"`
}

// CompletionService ends a session and runs its follow-ups: evaluation,
// progress and challenges.
type CompletionService interface {
	End(ctx context.Context, userID, sessionID string, opts EndOptions) (*EndResult, error)
}

type completionService struct {
	sessions     SessionService
	evaluations  EvaluationService
	gamification GamificationService
	challenges   ChallengeService
	log          *logrus.Logger
}

func NewCompletionService(sessions SessionService, evaluations EvaluationService, gamification GamificationService, challenges ChallengeService, log *logrus.Logger) CompletionService {
	if log == nil {
		log = logrus.New()
	}
	return &completionService{
		sessions:     sessions,
		evaluations:  evaluations,
		gamification: gamification,
		challenges:   challenges,
		log:          log,
	}
}

func (s *completionService) End(ctx context.Context, userID, sessionID string, opts EndOptions) (*EndResult, error) {
	sess, err := s.sessions.End(ctx, userID, sessionID, opts.Summary)
	if err != nil {
		return nil, err
	}
	res := &EndResult{Session: sess}
	if sess.Score != nil {
		res.ScoreApplied = *sess.Score
	}
	l := s.log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID})

	if opts.Evaluate && s.evaluations != nil {
		ev, err := s.evaluations.Evaluate(ctx, userID, sessionID)
		if err != nil {
			l.WithError(err).Warn("evaluation after end failed")
		} else {
			res.Evaluation = ev
			if ev.Status == models.EvaluationAvailable && ev.OverallScore != nil {
				res.ScoreApplied = *ev.OverallScore
				updated, err := s.sessions.ApplyEvaluationScore(ctx, userID, sessionID, res.ScoreApplied)
				if err != nil {
					l.WithError(err).Warn("storing evaluation score failed")
				} else {
					res.Session = updated
					sess = updated
				}
			}
		}
	}

	ended := s.sessionEnd(sess)
	outcome := SessionOutcome{
		UserID:          userID,
		SessionID:       sessionID,
		ScenarioID:      sess.ScenarioID,
		Score:           res.ScoreApplied,
		DurationSeconds: sess.DurationSeconds,
		EndedAt:         ended,
	}

	if s.gamification != nil {
		progress, err := s.gamification.RecordSession(ctx, outcome)
		if err != nil {
			l.WithError(err).Warn("progress update failed")
		} else {
			res.Progress = progress
		}
	}
	if s.challenges != nil {
		done, err := s.challenges.RecordScore(ctx, outcome)
		if err != nil {
			l.WithError(err).Warn("challenge update failed")
		}
		res.Challenges = done
	}
	return res, nil
}

func (s *completionService) sessionEnd(sess *models.TrainingSession) (t time.Time) {
	if sess.CompletedAt != nil {
		return *sess.CompletedAt
	}
	return t
}
