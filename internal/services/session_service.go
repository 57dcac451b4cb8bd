package services

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nuevpro/ventas/internal/convlog"
	"github.com/nuevpro/ventas/internal/metrics"
	"github.com/nuevpro/ventas/internal/models"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/timer"
	"github.com/nuevpro/ventas/internal/utils"
	"github.com/nuevpro/ventas/internal/voices"
)

// MessageInput is one turn to append. A nil RelativeSeconds is taken from the
// session timer.
type MessageInput struct {
	Content         string
	Sender          models.Sender
	RelativeSeconds *float64
	AudioURL        *string
}

type TimerState struct {
	SessionID      string               `json:"session_id"`
	Status         models.SessionStatus `json:"status"`
	Changed        bool                 `json:"changed"`
	ElapsedSeconds int64                `json:"elapsed_seconds"`
	Elapsed        string               `json:"elapsed"`
}

type SessionService interface {
	Start(ctx context.Context, userID string, cfg models.SessionConfig) (*models.TrainingSession, error)
	Get(ctx context.Context, userID, sessionID string) (*models.TrainingSession, error)
	ListByUser(ctx context.Context, userID string) ([]models.TrainingSession, error)
	Config(s *models.TrainingSession) models.SessionConfig

	SaveMessage(ctx context.Context, userID, sessionID string, in MessageInput) (*models.ConversationTurn, error)
	Messages(ctx context.Context, userID, sessionID string) ([]models.ConversationTurn, error)

	Pause(ctx context.Context, userID, sessionID string) (*TimerState, error)
	Resume(ctx context.Context, userID, sessionID string) (*TimerState, error)
	Timer(s *models.TrainingSession) *timer.Timer

	End(ctx context.Context, userID, sessionID string, summary models.SessionSummary) (*models.TrainingSession, error)
	// ApplyEvaluationScore makes an evaluation's overall score the final score of
	// an ended session, in both the score column and the log summary.
	ApplyEvaluationScore(ctx context.Context, userID, sessionID string, score int) (*models.TrainingSession, error)
}

type sessionService struct {
	sessions  pgrepo.SessionRepository
	scenarios pgrepo.ScenarioRepository
	selector  *voices.Selector
	log       *logrus.Logger
	now       func() time.Time
}

func NewSessionService(sessions pgrepo.SessionRepository, scenarios pgrepo.ScenarioRepository, selector *voices.Selector, log *logrus.Logger) SessionService {
	if selector == nil {
		selector = voices.NewSelector()
	}
	if log == nil {
		log = logrus.New()
	}
	return &sessionService{
		sessions:  sessions,
		scenarios: scenarios,
		selector:  selector,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *sessionService) Start(ctx context.Context, userID string, cfg models.SessionConfig) (*models.TrainingSession, error) {
	const op = "SessionService.Start"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}

	var scenarioID *string
	if cfg.ScenarioID != "" {
		if _, err := uuid.Parse(cfg.ScenarioID); err != nil {
			return nil, utils.E(utils.CodeInvalidArgument, op, "scenario_id must be a uuid", err)
		}
		if s.scenarios != nil {
			sc, err := s.scenarios.GetByID(ctx, cfg.ScenarioID)
			if err != nil {
				return nil, repoErr(op, "scenario", err)
			}
			if cfg.ClientProfile == "" {
				cfg.ClientProfile = sc.ClientProfile
			}
		}
		id := cfg.ScenarioID
		scenarioID = &id
	}

	if cfg.VoiceID == "" {
		pick := s.selector.PickRandom()
		cfg.VoiceID = pick.Voice.ID
		if cfg.EmotionalState == "" {
			cfg.EmotionalState = pick.EmotionalState
		}
		if cfg.ConversationStyle == "" {
			cfg.ConversationStyle = pick.ConversationStyle
		}
	} else if _, ok := voices.Lookup(cfg.VoiceID); !ok {
		return nil, utils.E(utils.CodeInvalidArgument, op, "unknown voice_id", nil)
	}
	if cfg.InteractionMode == "" {
		cfg.InteractionMode = "voice"
	}

	doc, err := convlog.Encode(convlog.New(cfg))
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode conversation log", err)
	}

	now := s.now()
	sess := &models.TrainingSession{
		ID:              uuid.NewString(),
		UserID:          userID,
		ScenarioID:      scenarioID,
		Status:          models.SessionCreated,
		StartedAt:       now,
		ConversationLog: doc,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}

	s.log.WithFields(logrus.Fields{"session_id": sess.ID, "user_id": userID, "voice_id": cfg.VoiceID}).Info("session started")
	return sess, nil
}

func (s *sessionService) Get(ctx context.Context, userID, sessionID string) (*models.TrainingSession, error) {
	const op = "SessionService.Get"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, utils.E(utils.CodeNotFound, op, "session not found", utils.ErrNotFound)
	}

	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, repoErr(op, "session", err)
	}
	if sess.UserID != userID {
		return nil, utils.E(utils.CodeForbidden, op, "forbidden", nil)
	}
	return sess, nil
}

func (s *sessionService) ListByUser(ctx context.Context, userID string) ([]models.TrainingSession, error) {
	const op = "SessionService.ListByUser"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}
	rows, err := s.sessions.ListByUser(ctx, userID, 100)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list sessions", err)
	}
	return rows, nil
}

// Config reads the session configuration from the stored log; an unreadable log
// yields an empty config.
func (s *sessionService) Config(sess *models.TrainingSession) models.SessionConfig {
	if sess == nil || len(sess.ConversationLog) == 0 {
		return models.SessionConfig{}
	}
	l, err := convlog.Decode(sess.ConversationLog)
	if err != nil {
		s.log.WithError(err).WithField("session_id", sess.ID).Warn("conversation log unreadable")
		return models.SessionConfig{}
	}
	return l.Config
}

func (s *sessionService) Timer(sess *models.TrainingSession) *timer.Timer {
	return timer.Restore(s.now, sess.StartedAt, time.Duration(sess.PausedSeconds)*time.Second, sess.PausedAt)
}

func (s *sessionService) SaveMessage(ctx context.Context, userID, sessionID string, in MessageInput) (*models.ConversationTurn, error) {
	const op = "SessionService.SaveMessage"

	if userID == "" {
		return nil, utils.Unauthenticated(op)
	}
	if !in.Sender.Valid() {
		return nil, utils.E(utils.CodeInvalidArgument, op, "sender must be user or ai", nil)
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "content is required", nil)
	}
	if in.RelativeSeconds != nil && (*in.RelativeSeconds < 0 || math.IsNaN(*in.RelativeSeconds) || math.IsInf(*in.RelativeSeconds, 0)) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "timestamp must be a non-negative number", nil)
	}

	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Ended() {
		return nil, utils.E(utils.CodeConflict, op, "session already ended", utils.ErrSessionEnded)
	}

	rel := float64(s.Timer(sess).ElapsedSeconds())
	if in.RelativeSeconds != nil {
		rel = *in.RelativeSeconds
	}

	turn := &models.ConversationTurn{
		Sender:          in.Sender,
		Content:         in.Content,
		RelativeSeconds: rel,
		AudioURL:        in.AudioURL,
		CreatedAt:       s.now(),
	}
	if err := s.sessions.AppendTurn(ctx, sessionID, turn); err != nil {
		return nil, repoErr(op, "session", err)
	}
	return turn, nil
}

func (s *sessionService) Messages(ctx context.Context, userID, sessionID string) ([]models.ConversationTurn, error) {
	const op = "SessionService.Messages"

	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.sessions.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list messages", err)
	}
	return rows, nil
}

func (s *sessionService) Pause(ctx context.Context, userID, sessionID string) (*TimerState, error) {
	return s.toggle(ctx, userID, sessionID, true)
}

func (s *sessionService) Resume(ctx context.Context, userID, sessionID string) (*TimerState, error) {
	return s.toggle(ctx, userID, sessionID, false)
}

func (s *sessionService) toggle(ctx context.Context, userID, sessionID string, pause bool) (*TimerState, error) {
	op := "SessionService.Resume"
	if pause {
		op = "SessionService.Pause"
	}

	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	var changed bool
	var err error
	if pause {
		changed, err = s.sessions.Pause(ctx, sessionID, s.now())
	} else {
		changed, err = s.sessions.Resume(ctx, sessionID, s.now())
	}
	if err != nil {
		return nil, repoErr(op, "session", err)
	}

	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, repoErr(op, "session", err)
	}
	elapsed := s.Timer(sess).ElapsedSeconds()
	return &TimerState{
		SessionID:      sessionID,
		Status:         sess.Status,
		Changed:        changed,
		ElapsedSeconds: elapsed,
		Elapsed:        timer.FormatDuration(elapsed),
	}, nil
}

func (s *sessionService) End(ctx context.Context, userID, sessionID string, summary models.SessionSummary) (*models.TrainingSession, error) {
	const op = "SessionService.End"

	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Ended() {
		return nil, utils.E(utils.CodeConflict, op, "session already ended", utils.ErrSessionEnded)
	}

	turns, err := s.sessions.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load turns", err)
	}

	now := s.now()
	t := s.Timer(sess)
	t.Resume()
	paused := int64(t.TotalPaused() / time.Second)

	duration := t.ElapsedSeconds()
	if summary.DurationSeconds != nil && *summary.DurationSeconds >= 0 {
		duration = *summary.DurationSeconds
	}

	final := FinalMetrics(turns)
	score, source := 0, "none"
	switch {
	case summary.Score != nil:
		score, source = metrics.Clamp(*summary.Score), "caller"
	case final != nil:
		score, source = final.Overall, "realtime"
	}

	l := convlog.New(s.Config(sess))
	l.Turns = convlog.FromTurns(turns)
	l.FinalMetrics = final
	l.Summary = &convlog.Summary{EndedAt: now, DurationSeconds: duration, Score: score, ScoreSource: source}
	doc, err := convlog.Encode(l)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode conversation log", err)
	}

	c := pgrepo.Completion{
		CompletedAt:     now,
		DurationSeconds: duration,
		DurationMinutes: int((duration + 30) / 60),
		Score:           score,
		PausedSeconds:   paused,
		ConversationLog: doc,
	}
	if err := s.sessions.Complete(ctx, sessionID, c); err != nil {
		return nil, repoErr(op, "session", err)
	}

	out, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, repoErr(op, "session", err)
	}
	s.log.WithFields(logrus.Fields{
		"session_id":       sessionID,
		"duration_seconds": duration,
		"score":            score,
		"score_source":     source,
		"turns":            len(turns),
	}).Info("session ended")
	return out, nil
}

func (s *sessionService) ApplyEvaluationScore(ctx context.Context, userID, sessionID string, score int) (*models.TrainingSession, error) {
	const op = "SessionService.ApplyEvaluationScore"

	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Ended() {
		return nil, utils.E(utils.CodeConflict, op, "session has not ended", nil)
	}

	score = metrics.Clamp(score)
	l, err := convlog.Decode(sess.ConversationLog)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "stored conversation log is unreadable", err)
	}
	if l.Summary == nil {
		l.Summary = &convlog.Summary{DurationSeconds: sess.DurationSeconds}
		if sess.CompletedAt != nil {
			l.Summary.EndedAt = *sess.CompletedAt
		}
	}
	l.Summary.Score = score
	l.Summary.ScoreSource = "evaluation"
	doc, err := convlog.Encode(l)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode conversation log", err)
	}

	if err := s.sessions.ApplyScore(ctx, sessionID, score, doc); err != nil {
		return nil, repoErr(op, "session", err)
	}
	return s.sessions.GetByID(ctx, sessionID)
}

// FinalMetrics replays the estimator over the user turns and returns the last
// snapshot, or nil when the user never spoke.
func FinalMetrics(turns []models.ConversationTurn) *metrics.RealTime {
	var last *metrics.RealTime
	var prev *int
	n := 0
	for _, t := range turns {
		if t.Sender != models.SenderUser {
			continue
		}
		n++
		m := metrics.Estimate(t.Content, n, prev)
		overall := m.Overall
		prev = &overall
		last = &m
	}
	return last
}
