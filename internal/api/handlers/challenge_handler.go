package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nuevpro/ventas/internal/services"
)

type ChallengeHandler struct {
	svc services.ChallengeService
}

func NewChallengeHandler(svc services.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{svc: svc}
}

func (h *ChallengeHandler) List(c *gin.Context) {
	rows, err := h.svc.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenges": rows})
}

func (h *ChallengeHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.ChallengeInput
	if !bindJSON(c, "ChallengeHandler.Create", &req, false) {
		return
	}
	ch, err := h.svc.Create(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (h *ChallengeHandler) Join(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	p, err := h.svc.Join(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ChallengeHandler) Leaderboard(c *gin.Context) {
	rows, err := h.svc.Leaderboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge_id": c.Param("id"), "entries": rows})
}
