package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps domain errors to HTTP status codes by their kind.
//   - Logs infrastructure failures without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "code": "<code>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := resolveError(err, log, c)
		if body.RetryAfterSeconds > 0 {
			c.Response().Header().Set("Retry-After", strconv.FormatInt(body.RetryAfterSeconds, 10))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, validation, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message), Code: statusCode(he.Code)}
	}

	body := errorResponse{Error: err.Error(), Code: domain.CodeOf(err)}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest, body
	case domain.KindAuthentication:
		return http.StatusUnauthorized, body
	case domain.KindNotFound:
		// The identity behind a still-signed token is gone.
		if errors.Is(err, domain.ErrUserNoLongerExists) {
			return http.StatusUnauthorized, body
		}
		return http.StatusNotFound, body
	case domain.KindConflict:
		return http.StatusConflict, body
	case domain.KindRateLimit:
		var rl *domain.RateLimitError
		if errors.As(err, &rl) {
			body.RetryAfterSeconds = rl.RetryAfterSeconds()
		}
		return http.StatusTooManyRequests, body
	}

	// Infrastructure failure: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("request failed on a backing store")

	return http.StatusServiceUnavailable, errorResponse{
		Error: "service temporarily unavailable",
		Code:  "unavailable",
	}
}

// statusCode renders an HTTP status as a machine code, e.g. "not_found".
func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "http_error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
