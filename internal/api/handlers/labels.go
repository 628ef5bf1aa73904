// Package handlers exposes the resolution engine over HTTP. The web
// descriptor round-trips as a flat JSON object: the server holds no
// per-client state between calls.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelflow/internal/descriptor"
	"github.com/orrn/labelflow/internal/engine"
	"github.com/orrn/labelflow/internal/faults"
)

type LabelHandler struct {
	engine *engine.Engine
}

func NewLabelHandler(e *engine.Engine) *LabelHandler {
	return &LabelHandler{engine: e}
}

func fail(c *gin.Context, err error) {
	c.JSON(faults.HTTPStatus(err), gin.H{"error": err.Error()})
}

// NewDescriptor returns an empty descriptor for a profile. The client
// keeps it and sends it back on every edit.
func (h *LabelHandler) NewDescriptor(c *gin.Context) {
	profile := c.Param("profile")

	state, err := h.engine.NewDescriptor(profile)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// EditField reconciles the client's descriptor for its current edit
// field, running the lookup synchronously when the last search field was
// edited, and returns the updated descriptor.
func (h *LabelHandler) EditField(c *gin.Context) {
	var state descriptor.State
	if err := c.ShouldBindJSON(&state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.engine.EditFieldWeb(c.Request.Context(), state)
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{"error": err.Error(), "state": updated})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Print finalizes the descriptor and transmits the label. On success the
// returned descriptor is cleared for the next label.
func (h *LabelHandler) Print(c *gin.Context) {
	var state descriptor.State
	if err := c.ShouldBindJSON(&state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.engine.PrintWeb(c.Request.Context(), state)
	if err != nil {
		c.JSON(faults.HTTPStatus(err), gin.H{"error": err.Error(), "state": updated})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Options runs the wildcard lookup and returns candidate rows for
// operator disambiguation. An empty list is a legitimate answer.
func (h *LabelHandler) Options(c *gin.Context) {
	var state descriptor.State
	if err := c.ShouldBindJSON(&state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	options, err := h.engine.Options(c.Request.Context(), state)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": options})
}

// Ingest accepts a raw XML or JSON request from an external system,
// matches it to a profile and prints.
func (h *LabelHandler) Ingest(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.engine.Ingest(c.Request.Context(), string(body))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
