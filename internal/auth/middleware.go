package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/lastwayz/ticketd/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	ActorID string
	Role    Role
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{ActorID: claims.ActorID, Role: claims.Role})
	return c.Next()
}

// PrincipalFromContext fetches the caller set by Handle.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(principalKey).(*Principal)
	return principal, ok && principal != nil
}
