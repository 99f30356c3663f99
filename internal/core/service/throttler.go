package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
	"github.com/lyySpace/DBMS-FinalProj/internal/core/ports"
)

const (
	defaultMaxFailures   = 5
	defaultLockoutWindow = 5 * time.Minute
)

// LoginThrottler counts failed logins per identifier in a TTL'd counter. The
// same counter doubles as the lockout: once it reaches the threshold its
// remaining expiry is the retry-after reported to the caller.
type LoginThrottler struct {
	store     ports.SessionStore
	threshold int64
	window    time.Duration
	key       func(identifier string) string
}

// NewLoginThrottler returns a throttler locking an identifier after
// maxFailures failures within window.
func NewLoginThrottler(store ports.SessionStore, maxFailures int, window time.Duration) *LoginThrottler {
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	if window <= 0 {
		window = defaultLockoutWindow
	}
	return &LoginThrottler{
		store:     store,
		threshold: int64(maxFailures),
		window:    window,
		key:       domain.FailureKey,
	}
}

// Scoped returns a throttler with the same limits whose counters live under
// key instead of the login failure keys.
func (t *LoginThrottler) Scoped(key func(identifier string) string) *LoginThrottler {
	scoped := *t
	scoped.key = key
	return &scoped
}

// Locked reports whether identifier has already reached the threshold.
func (t *LoginThrottler) Locked(ctx context.Context, identifier string) (bool, error) {
	key := t.key(identifier)
	v, ok, err := t.store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false, domain.Infra("throttler", "parse failure counter", fmt.Errorf("%s: %w", key, err))
	}
	return n >= t.threshold, nil
}

// RecordFailure counts one failed attempt. It returns a *domain.RateLimitError
// when the post-increment count is at or beyond the threshold, so the attempt
// that reaches the threshold is itself reported as the lockout.
func (t *LoginThrottler) RecordFailure(ctx context.Context, identifier string) error {
	n, remaining, err := t.store.Incr(ctx, t.key(identifier), t.window)
	if err != nil {
		return err
	}
	if n >= t.threshold {
		return &domain.RateLimitError{RetryAfter: remaining}
	}
	return nil
}

// Clear drops the failure counter. Only call it after a verified password.
func (t *LoginThrottler) Clear(ctx context.Context, identifier string) error {
	_, err := t.store.Delete(ctx, t.key(identifier))
	return err
}
