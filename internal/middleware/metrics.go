package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-portal-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route, keeping the
// path label bounded under scans.
const unmatchedRoute = "unmatched"

// Metrics records request count and latency per route template. Probe and
// scrape routes in skip are not recorded.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, path := range skip {
		skipped[path] = true
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if skipped[route] {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
