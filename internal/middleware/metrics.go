package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestObserver records served requests.
type RequestObserver interface {
	ObserveHTTPRequest(method, route string, status int, d time.Duration)
}

// Metrics reports each request to obs, labelled by route template.
func Metrics(obs RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		obs.ObserveHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
