// Package adminhttp is the process's admin-only HTTP surface: liveness and
// readiness probes and the Prometheus scrape endpoint. It is never reachable
// over the chat TCP listener.
package adminhttp

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chatcore/chatserver/internal/logging"
)

// HeaderXCorrelationID is the header key for the correlation ID.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID attaches a correlation id to the request context, reusing
// one supplied by the caller or minting a fresh one, and echoes it back on
// the response.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderXCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Header(HeaderXCorrelationID, correlationID)
		c.Set(string(logging.CorrelationIDKey), correlationID)
		c.Next()
	}
}
