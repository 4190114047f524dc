package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/lastwayz/ticketd/internal/api/dto"
	"github.com/lastwayz/ticketd/internal/auth"
	"github.com/lastwayz/ticketd/internal/engine"
	apperrors "github.com/lastwayz/ticketd/pkg/util"
)

// TicketsHandler exposes the lifecycle operations to the interaction dispatcher.
type TicketsHandler struct {
	engine *engine.Engine
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *engine.Engine) *TicketsHandler {
	return &TicketsHandler{engine: lifecycle}
}

// Create POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.RequesterID == "" || req.Category == "" {
		return apperrors.NewValidationError("requester_id and category required", nil)
	}

	result, err := h.engine.Create(c.UserContext(), req.RequesterID, req.Category)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.CreateTicketResponse{
		Ticket:      dto.FromRecord(result.Record),
		ChannelID:   result.Channel.ID,
		ChannelName: result.Channel.Name,
		Warnings:    result.Warnings,
	}})
}

// Close POST /tickets/close and /tickets/force-close. Both run the same
// close path, gated on the staff role.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CloseTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ChannelID == "" {
		return apperrors.NewValidationError("channel_id required", nil)
	}

	result, err := h.engine.Close(c.UserContext(), req.ChannelID, principal.ActorID)
	if err != nil {
		return err
	}
	resp := dto.CloseTicketResponse{
		Ticket:   dto.FromRecord(result.Record),
		Warnings: result.Warnings,
	}
	if result.Artifact != nil {
		resp.Transcript = result.Artifact.FileName()
	}
	return c.JSON(fiber.Map{"data": resp})
}

// AddParticipant POST /tickets/participants.
func (h *TicketsHandler) AddParticipant(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AddParticipantRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ChannelID == "" || req.TargetID == "" {
		return apperrors.NewValidationError("channel_id and target_id required", nil)
	}

	warnings, err := h.engine.AddParticipant(c.UserContext(), req.ChannelID, principal.ActorID, req.TargetID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"added": req.TargetID, "warnings": warnings}})
}

// Notify POST /tickets/notify.
func (h *TicketsHandler) Notify(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.NotifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ChannelID == "" {
		return apperrors.NewValidationError("channel_id required", nil)
	}

	if err := h.engine.Notify(c.UserContext(), req.ChannelID, principal.ActorID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"notified": true}})
}
