package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"inventory/internal/observability"
)

// Logger prints minimal request log including request_id when available and
// records the request in the HTTP metrics under its route pattern.
func Logger() gin.HandlerFunc {
	metrics := observability.HTTP()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		reqID := GetRequestID(c)
		status := c.Writer.Status()

		metrics.Observe(c.Request.Method, c.FullPath(), status, latency)

		log.Printf("[HTTP] request_id=%s method=%s path=%s status=%d latency_ms=%.3f ip=%s",
			reqID,
			c.Request.Method,
			c.Request.URL.Path,
			status,
			float64(latency.Microseconds())/1000.0,
			c.ClientIP(),
		)
	}
}
