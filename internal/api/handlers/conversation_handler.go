package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nuevpro/ventas/internal/metrics"
	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/services"
)

type ConversationHandler struct {
	sessions    services.SessionService
	counterpart services.CounterpartService
}

func NewConversationHandler(sessions services.SessionService, counterpart services.CounterpartService) *ConversationHandler {
	return &ConversationHandler{sessions: sessions, counterpart: counterpart}
}

type SaveMessageRequest struct {
	Content   string        `json:"content" binding:"required"`
	Sender    models.Sender `json:"sender"`    // default user
	Timestamp *float64      `json:"timestamp"` // seconds since session start
	AudioURL  *string       `json:"audio_url"`

	// Reply asks the simulated client to answer a user message.
	Reply      bool                     `json:"reply"`
	Synthesize bool                     `json:"synthesize"`
	Speech     services.SynthesisParams `json:"speech"`
}

type SaveMessageResponse struct {
	Turn    *models.ConversationTurn `json:"turn"`
	Metrics *metrics.RealTime        `json:"metrics,omitempty"`
	Reply   *services.Reply          `json:"reply,omitempty"`
	// ReplyError is set when the turn was saved but the answer failed.
	ReplyError *APIError `json:"reply_error,omitempty"`
}

func (h *ConversationHandler) SaveMessage(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req SaveMessageRequest
	if !bindJSON(c, "ConversationHandler.SaveMessage", &req, false) {
		return
	}
	if req.Sender == "" {
		req.Sender = models.SenderUser
	}

	ctx := c.Request.Context()
	sessionID := c.Param("session_id")
	turn, err := h.sessions.SaveMessage(ctx, userID, sessionID, services.MessageInput{
		Content:         req.Content,
		Sender:          req.Sender,
		RelativeSeconds: req.Timestamp,
		AudioURL:        req.AudioURL,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := SaveMessageResponse{Turn: turn}
	if turn.Sender == models.SenderUser && h.counterpart != nil {
		if turns, err := h.sessions.Messages(ctx, userID, sessionID); err == nil {
			n := 0
			for _, t := range turns {
				if t.Sender == models.SenderUser {
					n++
				}
			}
			m := h.counterpart.ObserveUserTurn(ctx, sessionID, n, turn.Content)
			resp.Metrics = &m
		}

		if req.Reply {
			reply, err := h.counterpart.Respond(ctx, userID, sessionID, services.ReplyOptions{
				Synthesize: req.Synthesize,
				Speech:     req.Speech,
			})
			if err != nil {
				_ = c.Error(err)
				resp.ReplyError = errorBody(err)
			} else {
				resp.Reply = reply
			}
		}
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *ConversationHandler) Messages(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	rows, err := h.sessions.Messages(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   rows,
	})
}
