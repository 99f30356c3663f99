package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
)

// Context keys set by Auth.
const (
	ContextKeySubject = "user_id"
	ContextKeyRole    = "role"
)

// TokenVerifier checks a bearer access token.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*domain.Claims, error)
}

// Auth validates the bearer access token and injects its claims into context.
func Auth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := verifier.VerifyAccessToken(parts[1])
			if err != nil {
				return err
			}

			c.Set(ContextKeySubject, claims.Subject)
			c.Set(ContextKeyRole, string(claims.Role))

			return next(c)
		}
	}
}
