package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/booktutor/internal/metrics"
)

// Metrics counts requests by route template so path params do not explode
// label cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
