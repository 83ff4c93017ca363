package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/grimoire-app/app-library/internal/config"
)

// HealthCheck reports the health of the API and its backing services.
func HealthCheck(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "HealthCheck")
	defer span.End()

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	if err := config.MongoDB.Client().Ping(ctx, nil); err != nil {
		health.Status = "unhealthy"
		health.Services["mongodb"] = "unhealthy"
	} else {
		health.Services["mongodb"] = "healthy"
	}

	if err := config.Redis.Ping(ctx).Err(); err != nil {
		health.Status = "unhealthy"
		health.Services["redis"] = "unhealthy"
	} else {
		health.Services["redis"] = "healthy"
	}

	span.SetAttributes(
		attribute.String("health.status", health.Status),
		attribute.String("health.mongodb", health.Services["mongodb"]),
		attribute.String("health.redis", health.Services["redis"]),
	)

	if health.Status == "healthy" {
		c.JSON(http.StatusOK, health)
	} else {
		c.JSON(http.StatusServiceUnavailable, health)
	}
}
