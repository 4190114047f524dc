package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is satisfied by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes. Pingers are optional;
// a nil entry is skipped, so file-backed deployments stay ready without
// external dependencies.
type HealthHandler struct {
	pingers map[string]Pinger
}

func NewHealthHandler(pingers map[string]Pinger) *HealthHandler {
	return &HealthHandler{pingers: pingers}
}

// Live GET /health/live.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready GET /health/ready.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	checks := make(fiber.Map, len(h.pingers))
	healthy := true
	for name, pinger := range h.pingers {
		if pinger == nil {
			continue
		}
		if err := pinger.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{"status": state, "checks": checks})
}
