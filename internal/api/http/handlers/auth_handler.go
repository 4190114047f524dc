package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lastwayz/ticketd/internal/auth"
	apperrors "github.com/lastwayz/ticketd/pkg/util"
)

// AuthHandler issues operator tokens.
type AuthHandler struct {
	service *auth.Service
}

func NewAuthHandler(service *auth.Service) *AuthHandler {
	return &AuthHandler{service: service}
}

type loginRequest struct {
	ActorID  string `json:"actor_id"`
	Password string `json:"password"`
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ActorID == "" || req.Password == "" {
		return apperrors.NewValidationError("actor_id and password required", nil)
	}

	token, role, expiresAt, err := h.service.Login(req.ActorID, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"access_token": token,
		"role":         role,
		"expires_at":   expiresAt,
	}})
}
