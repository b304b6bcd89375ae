package auth

import (
	"context"

	"github.com/trendlens/admin-api/internal/config"
	"github.com/trendlens/admin-api/pkg/auth"
	apperrors "github.com/trendlens/admin-api/pkg/errors"
	"github.com/trendlens/admin-api/pkg/logger"
	"github.com/trendlens/admin-api/pkg/security"
)

// TokenResponse is the login payload handed to the admin UI.
type TokenResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Service authenticates the single configured admin. Credentials live in
// config (hash only); there is no user table behind this.
type Service struct {
	admin    config.AdminConfig
	jwtSvc   auth.JWTService
	verifier security.PasswordVerifier
	logger   *logger.Logger
}

func NewService(admin config.AdminConfig, jwtSvc auth.JWTService, verifier security.PasswordVerifier, log *logger.Logger) *Service {
	return &Service{
		admin:    admin,
		jwtSvc:   jwtSvc,
		verifier: verifier,
		logger:   log.WithComponent("auth"),
	}
}

// Login verifies the admin credentials and issues a session token. Wrong
// username and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	if username != s.admin.Username {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err := s.verifier.Compare(s.admin.PasswordHash, password); err != nil {
		s.logger.Warn("failed admin login attempt", "username", username)
		return nil, apperrors.ErrInvalidCredentials
	}

	token, err := s.jwtSvc.GenerateToken(username)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &TokenResponse{Token: token, Username: username}, nil
}
