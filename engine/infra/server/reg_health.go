package server

import (
	"context"
	"net/http"
	"time"

	"github.com/compozy/blockgate/engine/infra/server/appstate"
	"github.com/compozy/blockgate/pkg/version"
	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CreateHealthHandler reports database and redis reachability. Redis is
// reported as disabled when not configured.
func CreateHealthHandler(state *appstate.State) gin.HandlerFunc {
	var rds healthChecker
	if state.Redis != nil {
		rds = state.Redis
	}
	return healthHandler(state.Store, rds)
}

func healthHandler(db, rds healthChecker) gin.HandlerFunc {
	build := version.GetVersion()
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		ready := true
		components := gin.H{}
		check := func(name string, hc healthChecker) {
			if err := hc.HealthCheck(ctx); err != nil {
				ready = false
				components[name] = gin.H{"status": "unhealthy", "error": err.Error()}
				return
			}
			components[name] = gin.H{"status": "healthy"}
		}
		check("database", db)
		if rds != nil {
			check("redis", rds)
		} else {
			components["redis"] = gin.H{"status": "disabled"}
		}
		status := "healthy"
		code := http.StatusOK
		if !ready {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"success": ready,
			"data": gin.H{
				"status":     status,
				"version":    build,
				"components": components,
			},
		})
	}
}
