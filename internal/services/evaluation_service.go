package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/nuevpro/ventas/internal/metrics"
	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/providers/llm"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/timer"
	"github.com/nuevpro/ventas/internal/utils"
)

// Reasons recorded on unavailable evaluations.
const (
	ReasonNotEvaluated  = "not_evaluated"
	ReasonNoTurns       = "no_user_turns"
	ReasonMalformed     = "malformed_evaluator_response"
	ReasonNotConfigured = "evaluator_not_configured"
)

type EvaluationService interface {
	Evaluate(ctx context.Context, userID, sessionID string) (*models.SessionEvaluation, error)
	// Get never fabricates scores: a session without a stored evaluation gets an
	// unavailable result.
	Get(ctx context.Context, userID, sessionID string) (*models.SessionEvaluation, error)
}

type evaluationService struct {
	sessions  SessionService
	scenarios pgrepo.ScenarioRepository
	evals     pgrepo.EvaluationRepository
	llm       llm.Provider
	log       *logrus.Logger
	now       func() time.Time
}

func NewEvaluationService(sessions SessionService, scenarios pgrepo.ScenarioRepository, evals pgrepo.EvaluationRepository, provider llm.Provider, log *logrus.Logger) EvaluationService {
	if log == nil {
		log = logrus.New()
	}
	return &evaluationService{
		sessions:  sessions,
		scenarios: scenarios,
		evals:     evals,
		llm:       provider,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *evaluationService) Get(ctx context.Context, userID, sessionID string) (*models.SessionEvaluation, error) {
	const op = "EvaluationService.Get"

	if _, err := s.sessions.Get(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	ev, err := s.evals.GetBySession(ctx, sessionID)
	if errors.Is(err, utils.ErrNotFound) {
		return unavailable(sessionID, userID, ReasonNotEvaluated, ""), nil
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load evaluation", err)
	}
	return ev, nil
}

func (s *evaluationService) Evaluate(ctx context.Context, userID, sessionID string) (*models.SessionEvaluation, error) {
	const op = "EvaluationService.Evaluate"

	sess, err := s.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := s.sessions.Messages(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	var ev *models.SessionEvaluation
	switch {
	case s.llm == nil:
		ev = unavailable(sessionID, userID, ReasonNotConfigured, "")
	case !hasUserTurn(turns):
		ev = unavailable(sessionID, userID, ReasonNoTurns, s.llm.Model())
	default:
		prompt := s.buildPrompt(ctx, sess, turns)
		temp := float32(0.2)
		raw, gerr := s.llm.Generate(ctx, llm.Request{System: evaluatorSystem, Prompt: prompt, JSON: true, Temperature: &temp})
		if gerr != nil {
			if errors.Is(gerr, context.DeadlineExceeded) {
				return nil, utils.E(utils.CodeTimeout, op, "evaluator timed out", gerr)
			}
			return nil, utils.E(utils.CodeUnavailable, op, "evaluator unavailable", gerr)
		}
		ev, err = ParseEvaluation(raw)
		if err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("evaluator returned malformed output")
			ev = unavailable(sessionID, userID, ReasonMalformed, s.llm.Model())
		} else {
			ev.SessionID = sessionID
			ev.UserID = userID
			ev.Model = s.llm.Model()
		}
	}

	now := s.now()
	ev.CreatedAt, ev.UpdatedAt = now, now
	if err := s.evals.Upsert(ctx, ev); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to store evaluation", err)
	}
	return ev, nil
}

func unavailable(sessionID, userID, reason, model string) *models.SessionEvaluation {
	return &models.SessionEvaluation{
		SessionID:    sessionID,
		UserID:       userID,
		Status:       models.EvaluationUnavailable,
		Reason:       reason,
		Model:        model,
		Scores:       datatypes.NewJSONType(map[string]int{}),
		Strengths:    []string{},
		Improvements: []string{},
	}
}

func hasUserTurn(turns []models.ConversationTurn) bool {
	for _, t := range turns {
		if t.Sender == models.SenderUser {
			return true
		}
	}
	return false
}

const evaluatorSystem = `Eres un evaluador experto de entrenamiento de ventas. Analiza la conversación entre
el VENDEDOR (usuario en formación) y el CLIENTE (simulado). Responde SOLO con JSON válido
con esta forma exacta:
{"overall_score": 0-100,
 "scores": {"rapport": 0-100, "clarity": 0-100, "empathy": 0-100, "accuracy": 0-100,
            "objection_handling": 0-100, "closing": 0-100},
 "strengths": ["..."], "improvements": ["..."], "specific_feedback": "..."}`

func (s *evaluationService) buildPrompt(ctx context.Context, sess *models.TrainingSession, turns []models.ConversationTurn) string {
	var b strings.Builder
	cfg := s.sessions.Config(sess)

	if sess.ScenarioID != nil && s.scenarios != nil {
		if sc, err := s.scenarios.GetByID(ctx, *sess.ScenarioID); err == nil {
			fmt.Fprintf(&b, "Escenario: %s (%s, %s)\n%s\n", sc.Title, sc.Category, sc.Difficulty, sc.Description)
			if len(sc.ExpectedOutcomes) > 0 {
				fmt.Fprintf(&b, "Resultados esperados: %s\n", string(sc.ExpectedOutcomes))
			}
		}
	}
	if cfg.ClientProfile != "" {
		fmt.Fprintf(&b, "Perfil del cliente: %s\n", cfg.ClientProfile)
	}

	b.WriteString("\nTranscripción:\n")
	for _, t := range turns {
		who := "CLIENTE"
		if t.Sender == models.SenderUser {
			who = "VENDEDOR"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", timer.FormatDuration(int64(t.RelativeSeconds)), who, t.Content)
	}
	return b.String()
}

type evaluationPayload struct {
	OverallScore     *float64           `json:"overall_score"`
	Scores           map[string]float64 `json:"scores"`
	Strengths        []string           `json:"strengths"`
	Improvements     []string           `json:"improvements"`
	SpecificFeedback string             `json:"specific_feedback"`
}

// ParseEvaluation accepts the evaluator's JSON (optionally fenced). Every
// dimension must be present; scores are clamped to [0,100].
func ParseEvaluation(raw string) (*models.SessionEvaluation, error) {
	var p evaluationPayload
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &p); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}

	scores := make(map[string]int, len(models.EvaluationDimensions))
	sum := 0
	for _, dim := range models.EvaluationDimensions {
		v, ok := p.Scores[dim]
		if !ok || math.IsNaN(v) {
			return nil, fmt.Errorf("decode evaluation: missing dimension %q", dim)
		}
		scores[dim] = metrics.Clamp(int(math.Round(v)))
		sum += scores[dim]
	}

	overall := int(math.Round(float64(sum) / float64(len(models.EvaluationDimensions))))
	if p.OverallScore != nil && !math.IsNaN(*p.OverallScore) {
		overall = int(math.Round(*p.OverallScore))
	}
	overall = metrics.Clamp(overall)

	if p.Strengths == nil {
		p.Strengths = []string{}
	}
	if p.Improvements == nil {
		p.Improvements = []string{}
	}

	return &models.SessionEvaluation{
		Status:           models.EvaluationAvailable,
		OverallScore:     &overall,
		Scores:           datatypes.NewJSONType(scores),
		Strengths:        p.Strengths,
		Improvements:     p.Improvements,
		SpecificFeedback: strings.TrimSpace(p.SpecificFeedback),
	}, nil
}
