package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/services"
	"github.com/nuevpro/ventas/internal/timer"
)

type SessionHandler struct {
	svc         services.SessionService
	completion  services.CompletionService
	evaluations services.EvaluationService
}

func NewSessionHandler(svc services.SessionService, completion services.CompletionService, evaluations services.EvaluationService) *SessionHandler {
	return &SessionHandler{svc: svc, completion: completion, evaluations: evaluations}
}

type StartSessionRequest struct {
	ScenarioID        string `json:"scenario_id"`
	ClientProfile     string `json:"client_profile"`
	InteractionMode   string `json:"interaction_mode"` // voice|text
	VoiceID           string `json:"voice_id"`
	EmotionalState    string `json:"emotional_state"`
	ConversationStyle string `json:"conversation_style"`
	Language          string `json:"language"`
}

type SessionResponse struct {
	*models.TrainingSession
	Config         models.SessionConfig `json:"config"`
	ElapsedSeconds int64                `json:"elapsed_seconds"`
	Elapsed        string               `json:"elapsed"`
}

func (h *SessionHandler) view(s *models.TrainingSession) SessionResponse {
	elapsed := h.svc.Timer(s).ElapsedSeconds()
	if s.Ended() {
		elapsed = s.DurationSeconds
	}
	return SessionResponse{
		TrainingSession: s,
		Config:          h.svc.Config(s),
		ElapsedSeconds:  elapsed,
		Elapsed:         timer.FormatDuration(elapsed),
	}
}

func (h *SessionHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req StartSessionRequest
	if !bindJSON(c, "SessionHandler.Start", &req, true) {
		return
	}

	sess, err := h.svc.Start(c.Request.Context(), userID, models.SessionConfig{
		ScenarioID:        req.ScenarioID,
		ClientProfile:     req.ClientProfile,
		InteractionMode:   req.InteractionMode,
		VoiceID:           req.VoiceID,
		EmotionalState:    req.EmotionalState,
		ConversationStyle: req.ConversationStyle,
		Language:          req.Language,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.view(sess))
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.svc.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": rows})
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, err := h.svc.Get(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(sess))
}

func (h *SessionHandler) Pause(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	st, err := h.svc.Pause(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *SessionHandler) Resume(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	st, err := h.svc.Resume(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type EndSessionRequest struct {
	DurationSeconds *int64 `json:"duration_seconds"`
	Score           *int   `json:"score"`
	Evaluate        *bool  `json:"evaluate"` // default true
}

func (h *SessionHandler) End(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req EndSessionRequest
	if !bindJSON(c, "SessionHandler.End", &req, true) {
		return
	}

	res, err := h.completion.End(c.Request.Context(), userID, c.Param("session_id"), services.EndOptions{
		Summary:  models.SessionSummary{DurationSeconds: req.DurationSeconds, Score: req.Score},
		Evaluate: req.Evaluate == nil || *req.Evaluate,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) Evaluation(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	ev, err := h.evaluations.Get(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *SessionHandler) Evaluate(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	ev, err := h.evaluations.Evaluate(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}
