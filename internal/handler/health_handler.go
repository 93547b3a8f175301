package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

const (
	checkOK       = "ok"
	checkDown     = "down"
	checkDisabled = "disabled"
)

// DependencyCheck pings one store the API needs. A nil Ping means the store is
// not configured and never fails readiness.
type DependencyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// RegisterHealthRoutes mounts /livez and /readyz. rdb may be nil when the
// gateway limiter runs in process.
func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client) {
	checks := []DependencyCheck{{Name: "postgres", Ping: sqlDB.PingContext}}
	if rdb != nil {
		checks = append(checks, DependencyCheck{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		checks = append(checks, DependencyCheck{Name: "redis"})
	}

	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(checks...))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": checkOK})
	}
}

// ReadyzHandler answers 503 while the failure queue store or the shared
// limiter store cannot be reached.
func ReadyzHandler(checks ...DependencyCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		ready := true
		results := make(fiber.Map, len(checks))
		for _, check := range checks {
			switch {
			case check.Ping == nil:
				results[check.Name] = checkDisabled
			case check.Ping(ctx) != nil:
				results[check.Name] = checkDown
				ready = false
			default:
				results[check.Name] = checkOK
			}
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not_ready", "checks": results})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": results})
	}
}
