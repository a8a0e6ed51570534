package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/circle-calendar-api/internal/service"
)

// Metrics returns middleware that captures request metrics using the provided service.
// Websocket upgrades are skipped; their duration is the connection lifetime.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil || c.IsWebsocket() {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, status, duration)
	}
}
