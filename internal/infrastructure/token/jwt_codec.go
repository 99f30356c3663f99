// Package token implements the stateless token codec: HS256 JWTs carrying a
// subject, role, token type, random id and expiry.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
	"github.com/lyySpace/DBMS-FinalProj/internal/core/ports"
)

var (
	// ErrInvalidSignature covers tampered, malformed or foreign tokens.
	ErrInvalidSignature = errors.New("token: invalid signature")
	// ErrExpired is only returned for tokens whose signature verified.
	ErrExpired = errors.New("token: expired")
	// ErrMisconfigured is returned by NewCodec for an unusable secret.
	ErrMisconfigured = errors.New("token: codec misconfigured")
)

type jwtClaims struct {
	Role domain.Role      `json:"role"`
	Type domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a process-wide secret.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ ports.TokenCodec = (*Codec)(nil)

// Option customises a Codec.
type Option func(*Codec)

// WithClock replaces the wall clock used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec builds a Codec. The secret must be non-empty.
func NewCodec(secret, issuer string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty signing secret", ErrMisconfigured)
	}
	c := &Codec{secret: []byte(secret), issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs {sub, role, typ, jti, exp} with exp = now + ttl.
func (c *Codec) Issue(subject string, role domain.Role, typ domain.TokenType, ttl time.Duration) (string, error) {
	now := c.now()
	claims := jwtClaims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Verify checks the signature and, unless opts.IgnoreExpiry is set, the
// expiry. A token of another type than typ is rejected as invalid.
func (c *Codec) Verify(tokenStr string, typ domain.TokenType, opts ports.VerifyOptions) (*domain.Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if opts.IgnoreExpiry {
		parserOpts = append(parserOpts, jwt.WithoutClaimsValidation())
	}

	var claims jwtClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch {
	case claims.ExpiresAt == nil:
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidSignature)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidSignature)
	case claims.Issuer != c.issuer:
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidSignature, claims.Issuer)
	case claims.Type != typ:
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidSignature, typ, claims.Type)
	}

	return &domain.Claims{
		Subject:   claims.Subject,
		Role:      claims.Role,
		Type:      claims.Type,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
