package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nuevpro/ventas/internal/services"
)

// ProfileHandler serves the caller's progress and stored preferences.
type ProfileHandler struct {
	gamification services.GamificationService
	preferences  services.PreferencesService
}

func NewProfileHandler(gamification services.GamificationService, preferences services.PreferencesService) *ProfileHandler {
	return &ProfileHandler{gamification: gamification, preferences: preferences}
}

func (h *ProfileHandler) Stats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	st, err := h.gamification.Stats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *ProfileHandler) MyAchievements(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.gamification.UserAchievements(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievements": rows})
}

func (h *ProfileHandler) Achievements(c *gin.Context) {
	rows, err := h.gamification.Achievements(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievements": rows})
}

func (h *ProfileHandler) Preferences(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	p, err := h.preferences.Get(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProfileHandler) UpdatePreferences(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.PreferencesInput
	if !bindJSON(c, "ProfileHandler.UpdatePreferences", &req, false) {
		return
	}
	p, err := h.preferences.Update(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
