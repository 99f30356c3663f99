package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
	"github.com/lyySpace/DBMS-FinalProj/internal/core/ports"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestCodec(t *testing.T) (*Codec, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c, err := NewCodec("test-secret-test-secret-test-secret", "portal", WithClock(clk.now))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c, clk
}

func TestCodec_IssueVerify(t *testing.T) {
	c, _ := newTestCodec(t)

	tok, err := c.Issue("u-1", domain.RoleStudent, domain.TokenAccess, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := c.Verify(tok, domain.TokenAccess, ports.VerifyOptions{})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "u-1" || claims.Role != domain.RoleStudent || claims.Type != domain.TokenAccess {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti")
	}
	want := time.Date(2026, 1, 1, 12, 15, 0, 0, time.UTC)
	if !claims.ExpiresAt.Equal(want) {
		t.Fatalf("expected exp %s, got %s", want, claims.ExpiresAt)
	}
}

func TestCodec_TokensAreDistinct(t *testing.T) {
	c, _ := newTestCodec(t)

	a, _ := c.Issue("u-1", domain.RoleStudent, domain.TokenRefresh, time.Hour)
	b, _ := c.Issue("u-1", domain.RoleStudent, domain.TokenRefresh, time.Hour)
	if a == b {
		t.Fatalf("expected distinct tokens for identical claims")
	}
}

func TestCodec_Expired(t *testing.T) {
	c, clk := newTestCodec(t)

	tok, _ := c.Issue("u-1", domain.RoleCompany, domain.TokenAccess, time.Minute)
	clk.t = clk.t.Add(2 * time.Minute)

	if _, err := c.Verify(tok, domain.TokenAccess, ports.VerifyOptions{}); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	claims, err := c.Verify(tok, domain.TokenAccess, ports.VerifyOptions{IgnoreExpiry: true})
	if err != nil {
		t.Fatalf("verify ignoring expiry: %v", err)
	}
	if !claims.Expired(clk.t) {
		t.Fatalf("expected claims to report expiry")
	}
}

func TestCodec_Tampered(t *testing.T) {
	c, _ := newTestCodec(t)

	tok, _ := c.Issue("u-1", domain.RoleStudent, domain.TokenAccess, time.Minute)
	parts := strings.Split(tok, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	for _, ignore := range []bool{false, true} {
		if _, err := c.Verify(tampered, domain.TokenAccess, ports.VerifyOptions{IgnoreExpiry: ignore}); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("ignore=%v: expected ErrInvalidSignature, got %v", ignore, err)
		}
	}
	if _, err := c.Verify("garbage", domain.TokenAccess, ports.VerifyOptions{}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for garbage, got %v", err)
	}
}

func TestCodec_ExpiredAndTamperedIsInvalid(t *testing.T) {
	c, clk := newTestCodec(t)

	other, _ := NewCodec("another-secret-another-secret-xx", "portal", WithClock(clk.now))
	tok, _ := other.Issue("u-1", domain.RoleStudent, domain.TokenAccess, time.Minute)
	clk.t = clk.t.Add(time.Hour)

	if _, err := c.Verify(tok, domain.TokenAccess, ports.VerifyOptions{}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestCodec_WrongType(t *testing.T) {
	c, _ := newTestCodec(t)

	refresh, _ := c.Issue("u-1", domain.RoleStudent, domain.TokenRefresh, time.Hour)
	if _, err := c.Verify(refresh, domain.TokenAccess, ports.VerifyOptions{}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected refresh token to be rejected as access token, got %v", err)
	}
}

func TestCodec_RejectsOtherAlgorithms(t *testing.T) {
	c, clk := newTestCodec(t)

	claims := jwtClaims{
		Role: domain.RoleStudent,
		Type: domain.TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    "portal",
			ExpiresAt: jwt.NewNumericDate(clk.t.Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := c.Verify(tok, domain.TokenAccess, ports.VerifyOptions{IgnoreExpiry: true}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected alg=none to be rejected, got %v", err)
	}
}

func TestNewCodec_EmptySecret(t *testing.T) {
	if _, err := NewCodec("", "portal"); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
}
