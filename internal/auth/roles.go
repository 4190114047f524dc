package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/lastwayz/ticketd/pkg/util"
)

// RequireStaff ensures the caller holds at least the staff role.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || (principal.Role != RoleStaff && principal.Role != RoleAdmin) {
			return apperrors.NewForbidden("staff role required")
		}
		return c.Next()
	}
}

// RequireAdmin ensures the caller is an administrator.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Role != RoleAdmin {
			return apperrors.NewForbidden("administrator role required")
		}
		return c.Next()
	}
}
