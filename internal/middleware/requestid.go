package middleware

import (
	"log/slog"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/simp-lee/logger"
)

const (
	requestIDHeader     = "X-Request-ID"
	requestIDContextKey = "request_id"
)

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// RequestIDConfig controls request-id reuse behavior.
type RequestIDConfig struct {
	TrustUpstream bool
}

// RequestID assigns a fresh request id to every request. Incoming
// X-Request-ID headers are ignored.
func RequestID() gin.HandlerFunc {
	return RequestIDWithConfig(RequestIDConfig{})
}

// RequestIDWithConfig assigns request ids, reusing a well-formed upstream
// X-Request-ID when TrustUpstream is set. The id is echoed in the response
// header and attached to the request context for structured logging.
func RequestIDWithConfig(cfg RequestIDConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ""
		if cfg.TrustUpstream {
			if upstream := c.GetHeader(requestIDHeader); requestIDPattern.MatchString(upstream) {
				id = upstream
			}
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(requestIDContextKey, id)
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithContextAttrs(c.Request.Context(), slog.String("request_id", id)))

		c.Next()
	}
}

// GetRequestID returns the request id, or "" outside the middleware.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}
