package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		// Use the route template so ids do not explode label cardinality.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(method, path, status, time.Since(start))
	}
}

// Timer measures operation duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	scope   string
}

// NewTimer creates a new timer for a gated operation on scope
func NewTimer(metrics *Metrics, scope string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		scope:   scope,
	}
}

// Stop stops the timer and records the duration under result
func (t *Timer) Stop(result string) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordGatedOperation(t.scope, result, duration)
	return duration
}
