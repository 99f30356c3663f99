package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TokenType distinguishes the two halves of a token pair.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the payload carried by every signed token.
type Claims struct {
	Subject   string    `json:"sub"`
	Role      Role      `json:"role"`
	Type      TokenType `json:"typ"`
	ID        string    `json:"jti"`
	ExpiresAt time.Time `json:"exp"`
}

// Expired reports whether the claims are past expiry at now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// TokenPair is a freshly issued access/refresh token couple.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User        *User `json:"user"`
	TokenPair
	NeedProfile bool `json:"needProfile"`
}

// RefreshResult is returned by a successful rotation.
type RefreshResult struct {
	TokenPair
	Role        Role `json:"role"`
	NeedProfile bool `json:"needProfile"`
}

const (
	sessionKeyPrefix   = "refresh:"
	sessionIndexPrefix = "user:sessions:"
	failureKeyPrefix   = "login:fail:"
	passwordKeyPrefix  = "password:fail:"
)

// DigestToken returns the hex SHA-256 digest of a bearer token.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SessionKey is the session store key for a refresh token. The raw token is
// never part of the key.
func SessionKey(refreshToken string) string {
	return sessionKeyPrefix + DigestToken(refreshToken)
}

// SessionIndexKey is the key of the set holding the session keys of subject.
func SessionIndexKey(subject string) string {
	return sessionIndexPrefix + subject
}

// FailureKey is the session store key of the failure counter for identifier.
func FailureKey(identifier string) string {
	return failureKeyPrefix + identifier
}

// PasswordFailureKey is the key of the failed current-password counter of a
// password change by subject.
func PasswordFailureKey(subject string) string {
	return passwordKeyPrefix + subject
}
