package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyySpace/DBMS-FinalProj/internal/api/middleware"
)

// ctxSubject extracts the subject injected by the Auth middleware. Its
// presence proves the middleware ran.
func ctxSubject(c echo.Context) (string, error) {
	subject, _ := c.Get(middleware.ContextKeySubject).(string)
	if subject == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return subject, nil
}
