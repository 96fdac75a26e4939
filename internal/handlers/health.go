package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is anything whose reachability the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	version  string
	services map[string]Pinger
}

// NewHealthHandler reports on each named dependency. A nil Pinger is
// reported as disabled.
func NewHealthHandler(version string, services map[string]Pinger) *HealthHandler {
	return &HealthHandler{version: version, services: services}
}

func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := fiber.StatusOK
	services := fiber.Map{}
	for name, p := range h.services {
		switch {
		case p == nil:
			services[name] = "disabled"
		case p.Ping(ctx) != nil:
			services[name] = "unreachable"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		default:
			services[name] = "connected"
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"version":  h.version,
		"services": services,
	})
}
