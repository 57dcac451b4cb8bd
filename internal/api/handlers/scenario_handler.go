package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nuevpro/ventas/internal/services"
)

type ScenarioHandler struct {
	svc services.ScenarioService
}

func NewScenarioHandler(svc services.ScenarioService) *ScenarioHandler {
	return &ScenarioHandler{svc: svc}
}

func (h *ScenarioHandler) List(c *gin.Context) {
	rows, err := h.svc.List(c.Request.Context(), c.Query("category"), c.Query("difficulty"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": rows})
}

func (h *ScenarioHandler) Get(c *gin.Context) {
	sc, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (h *ScenarioHandler) Create(c *gin.Context) {
	var req services.ScenarioInput
	if !bindJSON(c, "ScenarioHandler.Create", &req, false) {
		return
	}
	sc, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sc)
}

func (h *ScenarioHandler) Update(c *gin.Context) {
	var req services.ScenarioInput
	if !bindJSON(c, "ScenarioHandler.Update", &req, false) {
		return
	}
	sc, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}
