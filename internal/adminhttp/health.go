package adminhttp

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler serves the liveness and readiness probes.
type Handler struct {
	startedAt time.Time
	ready     func() bool
}

// NewHandler creates a health handler. ready is polled on every readiness
// request; it should report whether the coordinator loop and the chat
// listener are both accepting (the acceptor flips this once bound).
func NewHandler(ready func() bool) *Handler {
	return &Handler{startedAt: time.Now(), ready: ready}
}

// LivenessResponse is the liveness probe body.
type LivenessResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ReadinessResponse is the readiness probe body.
type ReadinessResponse struct {
	Status string `json:"status"`
}

// Liveness handles GET /health/live: 200 once the process is up, no
// dependency checks (there are none to check — the chat server has no
// external dependency).
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status: "alive",
		Uptime: time.Since(h.startedAt).String(),
	})
}

// Readiness handles GET /health/ready: 200 once the coordinator loop and
// chat listener are both accepting connections, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	if h.ready == nil || !h.ready() {
		c.JSON(http.StatusServiceUnavailable, ReadinessResponse{Status: "unavailable"})
		return
	}
	c.JSON(http.StatusOK, ReadinessResponse{Status: "ready"})
}
