package handlers

import (
	"context"
	"time"

	"bundlepay/internal/repositories"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// HealthChecker is implemented by optional dependencies such as
// cache.CacheService.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	db    *gorm.DB
	redis HealthChecker
}

// NewHealthHandler builds the health check. redis may be nil when the process
// runs without Redis.
func NewHealthHandler(db *gorm.DB, redis HealthChecker) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := "ok"
	services := fiber.Map{"database": "connected"}

	if err := repositories.Ping(h.db); err != nil {
		status = "degraded"
		services["database"] = "unavailable"
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		services["redis"] = "connected"
		if err := h.redis.HealthCheck(ctx); err != nil {
			status = "degraded"
			services["redis"] = "unavailable"
		}
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"services": services,
	})
}
