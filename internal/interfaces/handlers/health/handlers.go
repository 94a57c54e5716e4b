package health

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// DBPinger abstracts the database ping for testability.
type DBPinger interface {
	Ping() error
}

// Handlers holds dependencies for health endpoints.
type Handlers struct {
	Rdb     *redis.Client
	DB      DBPinger
	Started time.Time
}

// JSON GET /health/json — dependency pings and uptime.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	deps := fiber.Map{}
	status := "ok"

	if h.DB != nil {
		if err := h.DB.Ping(); err != nil {
			deps["database"] = "down"
			status = "degraded"
		} else {
			deps["database"] = "up"
		}
	} else {
		deps["database"] = "not configured"
	}

	if h.Rdb != nil {
		if err := h.Rdb.Ping(c.Context()).Err(); err != nil {
			deps["redis"] = "down"
			status = "degraded"
		} else {
			deps["redis"] = "up"
		}
	} else {
		deps["redis"] = "not configured"
	}

	return c.JSON(fiber.Map{
		"service":        "arrozal-silo-ledger",
		"status":         status,
		"uptime_seconds": int64(time.Since(h.Started).Seconds()),
		"dependencies":   deps,
	})
}
