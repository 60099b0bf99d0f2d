package http

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
	"github.com/garyjia/barangay-docflow/internal/metrics"
)

// Identity headers set by the upstream auth proxy
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderRequestID = "X-Request-ID"
)

const requestIDKey = "request_id"

// requestID keeps a caller supplied X-Request-ID or generates one, and echoes it back
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// requestLogger records latency per route template, so /requests/:id is one series
func requestLogger(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordAPIRequest(c.Request.Method, route, status, elapsed.Seconds())

		logger.Info("HTTP request",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"route", route,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", elapsed.String(),
			"actor", c.GetHeader(HeaderUserID),
		)
	}
}

// identityMiddleware attaches the caller identity to the request context.
// Requests without a user id keep the system actor.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if id != "" {
			actor := entity.Actor{
				ID:   id,
				Role: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))),
			}
			c.Request = c.Request.WithContext(entity.ContextWithActor(c.Request.Context(), actor))
		}
		c.Next()
	}
}

// requireAdmin rejects callers without the admin role
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !entity.ActorFromContext(c.Request.Context()).IsAdmin() {
			respondError(c, domainwf.ErrNotAuthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}
