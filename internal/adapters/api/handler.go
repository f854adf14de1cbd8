package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thomaslazar/pihole-dnspropagate/internal/application/scheduler"
)

// StateReader exposes the run state shown on the health endpoint.
type StateReader interface {
	Snapshot() scheduler.StateSnapshot
}

// Handler handles HTTP requests for the health API
type Handler struct {
	state StateReader
}

// NewHandler creates a new API handler
func NewHandler(state StateReader) *Handler {
	return &Handler{state: state}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)
}

// Health godoc
//
//	@Summary		Health check
//	@Description	Report the scheduler state and the outcome of the last run
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	scheduler.StateSnapshot
//	@Router			/healthz [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.state.Snapshot())
}
