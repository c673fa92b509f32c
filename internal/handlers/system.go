package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// RegisterSystemRoutes mounts /health and /metrics.
func RegisterSystemRoutes(r *gin.Engine, checks map[string]HealthCheck) {
	r.GET("/health", healthHandler(checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		label := "ok"
		if status != http.StatusOK {
			label = "degraded"
		}
		c.JSON(status, gin.H{"status": label, "checks": results})
	}
}
