package ports

import (
	"context"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
)

// RegisterInput carries the fields of a new identity.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     domain.Role
	RealName string
	Nickname string
}

// SessionManager owns the register/login/refresh/logout protocol.
type SessionManager interface {
	Register(ctx context.Context, in RegisterInput) (*domain.AuthResult, error)
	Login(ctx context.Context, identifier, password string) (*domain.AuthResult, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*domain.RefreshResult, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, subject string) (int, error)
	ActiveSessions(ctx context.Context, subject string) (int, error)
	ChangePassword(ctx context.Context, subject, current, next string) error
	VerifyAccessToken(token string) (*domain.Claims, error)

	// IsAdmin reports the stored admin flag of subject.
	IsAdmin(ctx context.Context, subject string) (bool, error)
	// SetAdmin grants or revokes the admin flag of target.
	SetAdmin(ctx context.Context, target string, admin bool) error
}
