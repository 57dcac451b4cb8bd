package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nuevpro/ventas/internal/events"
	"github.com/nuevpro/ventas/internal/metrics"
	"github.com/nuevpro/ventas/internal/models"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/utils"
)

type ChallengeInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ScenarioID  *string   `json:"scenario_id"`
	TargetScore int       `json:"target_score"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	XPReward    int       `json:"xp_reward"`
}

type ChallengeService interface {
	ListActive(ctx context.Context) ([]models.Challenge, error)
	Create(ctx context.Context, userID string, in ChallengeInput) (*models.Challenge, error)
	Join(ctx context.Context, userID, challengeID string) (*models.ChallengeParticipant, error)
	Leaderboard(ctx context.Context, challengeID string) ([]pgrepo.LeaderboardEntry, error)
	// RecordScore updates the user's participations for the session's scenario and
	// returns the challenges completed by this session.
	RecordScore(ctx context.Context, o SessionOutcome) ([]models.Challenge, error)
}

type challengeService struct {
	repo pgrepo.ChallengeRepository
	xp   XPGranter
	bus  events.Publisher
	log  *logrus.Logger
	now  func() time.Time
}

func NewChallengeService(repo pgrepo.ChallengeRepository, xp XPGranter, bus events.Publisher, log *logrus.Logger) ChallengeService {
	if log == nil {
		log = logrus.New()
	}
	return &challengeService{repo: repo, xp: xp, bus: bus, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *challengeService) ListActive(ctx context.Context) ([]models.Challenge, error) {
	rows, err := s.repo.ListActive(ctx, s.now())
	if err != nil {
		return nil, utils.E(utils.CodeInternal, "ChallengeService.ListActive", "failed to list challenges", err)
	}
	return rows, nil
}

func (s *challengeService) Create(ctx context.Context, userID string, in ChallengeInput) (*models.Challenge, error) {
	const op = "ChallengeService.Create"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "title is required", nil)
	}
	if in.TargetScore < 0 || in.TargetScore > 100 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "target_score must be between 0 and 100", nil)
	}
	if in.StartsAt.IsZero() {
		in.StartsAt = s.now()
	}
	if !in.EndsAt.After(in.StartsAt) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "ends_at must be after starts_at", nil)
	}
	if in.XPReward < 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "xp_reward must be >= 0", nil)
	}
	if in.ScenarioID != nil {
		if _, err := uuid.Parse(*in.ScenarioID); err != nil {
			return nil, utils.E(utils.CodeInvalidArgument, op, "scenario_id must be a uuid", err)
		}
	}

	c := &models.Challenge{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		ScenarioID:  in.ScenarioID,
		TargetScore: in.TargetScore,
		StartsAt:    in.StartsAt.UTC(),
		EndsAt:      in.EndsAt.UTC(),
		XPReward:    in.XPReward,
		CreatedBy:   userID,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create challenge", err)
	}
	return c, nil
}

func (s *challengeService) Join(ctx context.Context, userID, challengeID string) (*models.ChallengeParticipant, error) {
	const op = "ChallengeService.Join"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}
	if _, err := uuid.Parse(challengeID); err != nil {
		return nil, utils.E(utils.CodeNotFound, op, "challenge not found", utils.ErrNotFound)
	}
	c, err := s.repo.GetByID(ctx, challengeID)
	if err != nil {
		return nil, repoErr(op, "challenge", err)
	}
	now := s.now()
	if !c.ActiveAt(now) {
		return nil, utils.E(utils.CodeConflict, op, "challenge is not active", nil)
	}
	p, err := s.repo.Join(ctx, challengeID, userID, now)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to join challenge", err)
	}
	return p, nil
}

func (s *challengeService) Leaderboard(ctx context.Context, challengeID string) ([]pgrepo.LeaderboardEntry, error) {
	const op = "ChallengeService.Leaderboard"

	if _, err := uuid.Parse(challengeID); err != nil {
		return nil, utils.E(utils.CodeNotFound, op, "challenge not found", utils.ErrNotFound)
	}
	if _, err := s.repo.GetByID(ctx, challengeID); err != nil {
		return nil, repoErr(op, "challenge", err)
	}
	rows, err := s.repo.Leaderboard(ctx, challengeID, 50)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load leaderboard", err)
	}
	return rows, nil
}

func (s *challengeService) RecordScore(ctx context.Context, o SessionOutcome) ([]models.Challenge, error) {
	const op = "ChallengeService.RecordScore"

	if o.ScenarioID == nil {
		return nil, nil
	}
	at := o.EndedAt
	if at.IsZero() {
		at = s.now()
	}
	parts, chs, err := s.repo.JoinedActiveForScenario(ctx, o.UserID, *o.ScenarioID, at)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load challenges", err)
	}
	byID := make(map[string]models.Challenge, len(chs))
	for _, c := range chs {
		byID[c.ID] = c
	}

	score := metrics.Clamp(o.Score)
	var completed []models.Challenge
	for i := range parts {
		p := &parts[i]
		c, ok := byID[p.ChallengeID]
		if !ok {
			continue
		}
		p.Attempts++
		p.BestScore = max(p.BestScore, score)
		p.UpdatedAt = at
		newlyDone := p.CompletedAt == nil && p.BestScore >= c.TargetScore
		if newlyDone {
			done := at
			p.CompletedAt = &done
		}
		if err := s.repo.SaveParticipant(ctx, p); err != nil {
			return completed, utils.E(utils.CodeInternal, op, "failed to save participant", err)
		}
		if !newlyDone {
			continue
		}

		completed = append(completed, c)
		if s.xp != nil && c.XPReward > 0 {
			if _, err := s.xp.GrantXP(ctx, o.UserID, c.XPReward); err != nil {
				s.log.WithError(err).WithField("challenge_id", c.ID).Warn("challenge xp not granted")
			}
		}
		if s.bus != nil {
			_ = s.bus.Publish(ctx, events.UserChannel(o.UserID), models.GamificationEvent{
				Type:        models.EventChallengeCompleted,
				UserID:      o.UserID,
				XP:          c.XPReward,
				ChallengeID: c.ID,
				Timestamp:   at,
			})
		}
	}
	return completed, nil
}
