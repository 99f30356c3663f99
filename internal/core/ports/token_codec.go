package ports

import (
	"time"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
)

// VerifyOptions tunes TokenCodec.Verify.
type VerifyOptions struct {
	// IgnoreExpiry skips the expiry check. The signature is always checked.
	IgnoreExpiry bool
}

// TokenCodec signs and verifies expiring tokens without server-side state.
type TokenCodec interface {
	Issue(subject string, role domain.Role, typ domain.TokenType, ttl time.Duration) (string, error)
	Verify(token string, typ domain.TokenType, opts VerifyOptions) (*domain.Claims, error)
}
