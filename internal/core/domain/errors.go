package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an error for the request boundary.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindAuthentication
	KindRateLimit
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindRateLimit:
		return "rate_limit"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "infrastructure"
	}
}

// Error is a request-rejection error with a stable machine code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrInvalidCredentials      = &Error{KindAuthentication, "invalid_credentials", "invalid credentials"}
	ErrInvalidAccessToken      = &Error{KindAuthentication, "invalid_access_token", "invalid access token"}
	ErrAccessTokenStillValid   = &Error{KindValidation, "access_token_still_valid", "access token is still valid"}
	ErrInvalidRefreshToken     = &Error{KindAuthentication, "invalid_refresh_token", "invalid refresh token"}
	ErrSessionExpiredOrInvalid = &Error{KindAuthentication, "session_expired_or_invalid", "session expired or invalid"}
	ErrTokenMismatch           = &Error{KindAuthentication, "token_mismatch", "token payloads do not match"}
	ErrUserNoLongerExists      = &Error{KindNotFound, "user_no_longer_exists", "user no longer exists"}
	ErrInvalidOrExpiredToken   = &Error{KindAuthentication, "invalid_or_expired_token", "invalid or expired access token"}
	ErrTooManyAttempts         = &Error{KindRateLimit, "too_many_attempts", "too many failed attempts"}
	ErrUserExists              = &Error{KindConflict, "user_exists", "email or username already exists"}
	ErrUserNotFound            = &Error{KindNotFound, "user_not_found", "user not found"}
)

// ValidationError reports malformed input rejected before any store access.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid input"
	}
	return strings.Join(e.Fields, "; ")
}

// NewValidationError builds a ValidationError from field messages.
func NewValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// RateLimitError carries the retry-after guidance of a lockout.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter <= 0 {
		return ErrTooManyAttempts.Message
	}
	return fmt.Sprintf("%s, try again in %d seconds", ErrTooManyAttempts.Message, e.RetryAfterSeconds())
}

func (e *RateLimitError) Unwrap() error { return ErrTooManyAttempts }

// RetryAfterSeconds rounds the retry-after duration up to whole seconds.
func (e *RateLimitError) RetryAfterSeconds() int64 {
	s := int64(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		s++
	}
	return s
}

// InfrastructureError wraps a failure of a backing store. It must never be
// mistaken for an authentication failure.
type InfrastructureError struct {
	Store string
	Op    string
	Err   error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Store, e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// Infra wraps err as an InfrastructureError. Nil stays nil.
func Infra(store, op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InfrastructureError
	if errors.As(err, &ie) {
		return err
	}
	return &InfrastructureError{Store: store, Op: op, Err: err}
}

// KindOf classifies err. Unrecognised errors are treated as infrastructure.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		re *RateLimitError
		ie *InfrastructureError
		de *Error
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &re):
		return KindRateLimit
	case errors.As(err, &ie):
		return KindInfrastructure
	case errors.As(err, &de):
		return de.Kind
	}
	return KindInfrastructure
}

// CodeOf returns the machine code of err, or "internal".
func CodeOf(err error) string {
	var (
		ve *ValidationError
		de *Error
	)
	switch {
	case errors.As(err, &ve):
		return "validation_failed"
	case errors.As(err, &de):
		return de.Code
	}
	return "internal"
}
