package auth

import (
	"time"

	"github.com/lastwayz/ticketd/internal/config"
	apperrors "github.com/lastwayz/ticketd/pkg/util"
)

// Service issues dispatcher-API tokens. Operator credentials are shared
// secrets held as bcrypt hashes in configuration: one for staff, one for
// admins. Per-user identity comes from the platform user id the operator
// logs in with; trust in that id is delegated to the platform's role model.
type Service struct {
	tokens *TokenManager
	cfg    config.AuthConfig
}

// NewService builds the auth service.
func NewService(cfg config.AuthConfig) *Service {
	return &Service{
		tokens: NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		cfg:    cfg,
	}
}

// TokenManager exposes the underlying manager for middleware wiring.
func (s *Service) TokenManager() *TokenManager {
	return s.tokens
}

// Login verifies the operator password and issues a token. The admin hash is
// checked first so an admin password always yields the admin role.
func (s *Service) Login(actorID, password string) (token string, role Role, expiresAt time.Time, err error) {
	switch {
	case s.cfg.AdminPasswordHash != "" && ComparePassword(s.cfg.AdminPasswordHash, password) == nil:
		role = RoleAdmin
	case s.cfg.StaffPasswordHash != "" && ComparePassword(s.cfg.StaffPasswordHash, password) == nil:
		role = RoleStaff
	default:
		return "", "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err = s.tokens.GenerateToken(actorID, role)
	if err != nil {
		return "", "", time.Time{}, apperrors.NewInternalError(err)
	}
	return token, role, expiresAt, nil
}
