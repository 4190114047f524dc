package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lastwayz/ticketd/internal/api/dto"
	"github.com/lastwayz/ticketd/internal/auth"
	"github.com/lastwayz/ticketd/internal/engine"
	"github.com/lastwayz/ticketd/internal/observability"
	apperrors "github.com/lastwayz/ticketd/pkg/util"
)

// AdminHandler groups the operator-facing endpoints.
type AdminHandler struct {
	engine  *engine.Engine
	metrics *observability.Metrics
}

func NewAdminHandler(lifecycle *engine.Engine, metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{engine: lifecycle, metrics: metrics}
}

// ToggleSchedule POST /admin/schedule.
func (h *AdminHandler) ToggleSchedule(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ToggleScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Enabled == nil {
		return apperrors.NewValidationError("enabled required", nil)
	}

	previous, current, err := h.engine.ToggleSchedule(c.UserContext(), *req.Enabled, principal.ActorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"previous": previous,
		"current":  current,
	}})
}

// Stats GET /admin/stats.
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	payload := fiber.Map{"tickets": h.engine.Statistics()}
	if h.metrics != nil {
		payload["requests"] = h.metrics.Counters()
	}
	return c.JSON(fiber.Map{"data": payload})
}

// AnnounceEntry POST /admin/entry-message.
func (h *AdminHandler) AnnounceEntry(c *fiber.Ctx) error {
	var req dto.AnnounceEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ChannelID == "" {
		return apperrors.NewValidationError("channel_id required", nil)
	}
	if err := h.engine.AnnounceEntry(c.UserContext(), req.ChannelID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"announced": true}})
}
