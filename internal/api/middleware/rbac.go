package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// AdminChecker reports the stored admin flag of a subject.
type AdminChecker interface {
	IsAdmin(ctx context.Context, subject string) (bool, error)
}

// RequireAdmin admits only subjects whose stored admin flag is set. It must
// run after Auth. Store errors are passed on to the error handler.
func RequireAdmin(checker AdminChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			subject, _ := c.Get(ContextKeySubject).(string)
			if subject == "" {
				return forbidden(c)
			}

			admin, err := checker.IsAdmin(c.Request().Context(), subject)
			if err != nil {
				return err
			}
			if !admin {
				return forbidden(c)
			}
			return next(c)
		}
	}
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden", "code": "forbidden"})
}
