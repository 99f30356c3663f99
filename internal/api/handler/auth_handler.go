package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyySpace/DBMS-FinalProj/internal/api/metrics"
	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
	"github.com/lyySpace/DBMS-FinalProj/internal/core/ports"
)

// AuthHandler exposes the session lifecycle over HTTP. Failures are returned
// to Echo and rendered by the central error handler.
type AuthHandler struct {
	sessions ports.SessionManager
}

func NewAuthHandler(sessions ports.SessionManager) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// Register creates a new identity and its first session.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  domain.AuthResult
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	res, err := h.sessions.Register(c.Request().Context(), ports.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.Role(req.Role),
		RealName: req.RealName,
		Nickname: req.Nickname,
	})
	if err != nil {
		return err
	}

	metrics.RegistrationsTotal.WithLabelValues(string(res.User.Role)).Inc()
	return c.JSON(http.StatusCreated, res)
}

// Login authenticates a username or email and opens a session.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  domain.AuthResult
// @Failure      401   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	res, err := h.sessions.Login(c.Request().Context(), req.Identifier, req.Password)
	metrics.LoginsTotal.WithLabelValues(loginResult(err)).Inc()
	if err != nil {
		if domain.KindOf(err) == domain.KindRateLimit {
			metrics.LockoutsTotal.Inc()
		}
		return err
	}

	return c.JSON(http.StatusOK, res)
}

// Refresh rotates an expired access token and its refresh token.
//
// @Summary      Refresh a session
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Current token pair"
// @Success      200   {object}  domain.RefreshResult
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	res, err := h.sessions.Refresh(c.Request().Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues(domain.CodeOf(err)).Inc()
		return err
	}

	metrics.RefreshTotal.WithLabelValues("success").Inc()
	return c.JSON(http.StatusOK, res)
}

// Logout revokes the session of a refresh token. Unknown tokens succeed.
//
// @Summary      Logout
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      logoutRequest  true  "Refresh token to revoke"
// @Success      200   {object}  successResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.sessions.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return err
	}

	metrics.SessionsRevokedTotal.WithLabelValues("logout").Inc()
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

// Verify checks an access token and returns its claims.
//
// @Summary      Verify an access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      verifyRequest  true  "Access token"
// @Success      200   {object}  domain.Claims
// @Failure      401   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /auth/verify [post]
func (h *AuthHandler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	claims, err := h.sessions.VerifyAccessToken(req.AccessToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, claims)
}

// LogoutAll revokes every session of the authenticated subject.
//
// @Summary      Logout from every device
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  logoutAllResponse
// @Failure      401   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	subject, err := ctxSubject(c)
	if err != nil {
		return err
	}

	n, err := h.sessions.LogoutAll(c.Request().Context(), subject)
	if n > 0 {
		metrics.SessionsRevokedTotal.WithLabelValues("logout_all").Add(float64(n))
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, logoutAllResponse{Success: true, Revoked: n})
}

// Sessions counts the live sessions of the authenticated subject.
//
// @Summary      Count active sessions
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  sessionsResponse
// @Failure      401   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/sessions [get]
func (h *AuthHandler) Sessions(c echo.Context) error {
	subject, err := ctxSubject(c)
	if err != nil {
		return err
	}

	n, err := h.sessions.ActiveSessions(c.Request().Context(), subject)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionsResponse{Active: n})
}

// ChangePassword replaces the password and revokes every session.
//
// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changePasswordRequest  true  "Current and new password"
// @Success      200   {object}  successResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/password [put]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	subject, err := ctxSubject(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.sessions.ChangePassword(c.Request().Context(), subject, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}

	metrics.SessionsRevokedTotal.WithLabelValues("password_change").Inc()
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

// SetAdmin grants or revokes the admin flag of another identity.
//
// @Summary      Grant or revoke admin
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string           true  "Identity id"
// @Param        body  body      setAdminRequest  true  "New admin flag"
// @Success      200   {object}  successResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /admin/users/{id}/admin [put]
func (h *AuthHandler) SetAdmin(c echo.Context) error {
	target := c.Param("id")
	if target == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing user id")
	}

	var req setAdminRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.sessions.SetAdmin(c.Request().Context(), target, *req.Admin); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, successResponse{Success: true})
}

func loginResult(err error) string {
	if err == nil {
		return "success"
	}
	switch domain.KindOf(err) {
	case domain.KindAuthentication, domain.KindValidation:
		return "invalid"
	case domain.KindRateLimit:
		return "locked"
	default:
		return "error"
	}
}
