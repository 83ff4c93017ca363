package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grimoire-app/app-library/internal/gateway"
)

// RegisterRoutes wires the admin surface, health, metrics and the realtime
// endpoint onto the router.
func RegisterRoutes(router *gin.Engine, jobs *JobHandler, sessions *SessionHandler, gw *gateway.Gateway) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/health", HealthCheck)

		v1.POST("/jobs", jobs.Enqueue)
		v1.GET("/jobs", jobs.List)
		v1.GET("/jobs/stats", jobs.Stats)
		v1.GET("/jobs/:id", jobs.Get)
		v1.GET("/jobs/:id/logs", jobs.Logs)
		v1.POST("/jobs/:id/retry", jobs.Retry)
		v1.DELETE("/jobs/:id", jobs.Remove)
		v1.POST("/jobs/clean", jobs.Clean)

		v1.POST("/sessions", sessions.Create)
		v1.GET("/sessions/:id", sessions.Get)
		v1.POST("/sessions/:id/refresh", sessions.Refresh)
		v1.DELETE("/sessions/:id", sessions.End)

		v1.GET("/ws", gw.HandleWS)
	}
}
