package handler

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

// --- Request / Response types ---

type registerRequest struct {
	Username string `json:"username"  validate:"required,min=3,max=50"`
	Email    string `json:"email"     validate:"required,email,max=50"`
	Password string `json:"password"  validate:"required,min=6,max=50"`
	Role     string `json:"role"      validate:"required,oneof=student department company"`
	RealName string `json:"real_name" validate:"required,min=1,max=50"`
	Nickname string `json:"nickname"  validate:"required,min=1,max=50"`
}

type loginRequest struct {
	// Identifier is a username or an email.
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password"   validate:"required"`
}

type refreshRequest struct {
	AccessToken  string `json:"accessToken"  validate:"required"`
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type verifyRequest struct {
	AccessToken string `json:"accessToken" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword"     validate:"required,min=6,max=50"`
}

type setAdminRequest struct {
	Admin *bool `json:"admin" validate:"required"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type logoutAllResponse struct {
	Success bool `json:"success"`
	Revoked int  `json:"revoked"`
}

type sessionsResponse struct {
	Active int `json:"active"`
}
