package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/mobile-bank/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records request count and latency per route.
func Metrics() gin.HandlerFunc {
	return func(gctx *gin.Context) {
		endpoint := gctx.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		timer := prometheus.NewTimer(metrics.HTTPLatency.WithLabelValues(gctx.Request.Method, endpoint))

		gctx.Next()

		timer.ObserveDuration()
		metrics.HTTPRequests.WithLabelValues(gctx.Request.Method, endpoint, strconv.Itoa(gctx.Writer.Status())).Inc()
	}
}
