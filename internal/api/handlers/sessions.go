package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelflow/internal/engine"
	"github.com/orrn/labelflow/internal/faults"
)

// SessionHandler exposes the stateful path: a server-held descriptor per
// session, with lookups running in the background.
type SessionHandler struct {
	engine *engine.Engine
}

func NewSessionHandler(e *engine.Engine) *SessionHandler {
	return &SessionHandler{engine: e}
}

type CreateSessionRequest struct {
	Profile string `json:"profile" binding:"required"`
}

type EditSessionRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.engine.Sessions().Create(req.Profile)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":    session.ID,
		"state": session.Snapshot(),
	})
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.engine.Sessions().Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": session.ID, "state": session.Snapshot()})
}

func (h *SessionHandler) EditField(c *gin.Context) {
	session, err := h.engine.Sessions().Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	var req EditSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := session.EditField(c.Request.Context(), req.Field, req.Value)
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{"error": err.Error(), "state": state})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *SessionHandler) Print(c *gin.Context) {
	session, err := h.engine.Sessions().Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	state, err := session.Print(c.Request.Context())
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{"error": err.Error(), "state": state})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *SessionHandler) Clear(c *gin.Context) {
	session, err := h.engine.Sessions().Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Clear())
}

func (h *SessionHandler) Delete(c *gin.Context) {
	h.engine.Sessions().Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}
