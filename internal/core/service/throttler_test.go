package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
)

func TestLoginThrottler_ThresholdIsInclusive(t *testing.T) {
	clock := newTestClock()
	store := newMemSessionStore(clock)
	th := NewLoginThrottler(store, 3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		if err := th.RecordFailure(ctx, "carol"); err != nil {
			t.Fatalf("failure %d: unexpected error %v", i, err)
		}
	}
	if locked, _ := th.Locked(ctx, "carol"); locked {
		t.Fatalf("should not be locked below threshold")
	}

	err := th.RecordFailure(ctx, "carol")
	var rl *domain.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("failure 3: expected RateLimitError, got %v", err)
	}
	if rl.RetryAfter != time.Minute {
		t.Fatalf("expected retry-after 1m, got %s", rl.RetryAfter)
	}
	if locked, _ := th.Locked(ctx, "carol"); !locked {
		t.Fatalf("expected locked at threshold")
	}
}

func TestLoginThrottler_RetryAfterIsNonIncreasing(t *testing.T) {
	clock := newTestClock()
	store := newMemSessionStore(clock)
	th := NewLoginThrottler(store, 1, time.Minute)
	ctx := context.Background()

	prev := time.Duration(1<<62 - 1)
	for i := 0; i < 4; i++ {
		var rl *domain.RateLimitError
		if err := th.RecordFailure(ctx, "dave"); !errors.As(err, &rl) {
			t.Fatalf("attempt %d: expected RateLimitError, got %v", i, err)
		}
		if rl.RetryAfter > prev {
			t.Fatalf("retry-after grew from %s to %s", prev, rl.RetryAfter)
		}
		prev = rl.RetryAfter
		clock.Advance(10 * time.Second)
	}
}

func TestLoginThrottler_ClearAndIsolation(t *testing.T) {
	clock := newTestClock()
	store := newMemSessionStore(clock)
	th := NewLoginThrottler(store, 2, time.Minute)
	ctx := context.Background()

	_ = th.RecordFailure(ctx, "erin")
	_ = th.RecordFailure(ctx, "erin")
	if err := th.RecordFailure(ctx, "frank"); err != nil {
		t.Fatalf("identifiers must be counted separately, got %v", err)
	}

	if err := th.Clear(ctx, "erin"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if locked, _ := th.Locked(ctx, "erin"); locked {
		t.Fatalf("expected erin unlocked after clear")
	}
	if err := th.Clear(ctx, "nobody"); err != nil {
		t.Fatalf("clearing an absent counter: %v", err)
	}
}

func TestLoginThrottler_Defaults(t *testing.T) {
	th := NewLoginThrottler(newMemSessionStore(newTestClock()), 0, 0)
	if th.threshold != defaultMaxFailures || th.window != defaultLockoutWindow {
		t.Fatalf("unexpected defaults: %d %s", th.threshold, th.window)
	}
}

func TestLoginThrottler_StoreErrorPropagates(t *testing.T) {
	store := newMemSessionStore(newTestClock())
	store.err = errStoreDown
	th := NewLoginThrottler(store, 5, time.Minute)

	err := th.RecordFailure(context.Background(), "gina")
	if domain.KindOf(err) != domain.KindInfrastructure {
		t.Fatalf("expected infrastructure kind, got %v", err)
	}
}

func TestLoginThrottler_CorruptCounterIsInfrastructure(t *testing.T) {
	store := newMemSessionStore(newTestClock())
	th := NewLoginThrottler(store, 5, time.Minute)
	ctx := context.Background()
	_ = store.Set(ctx, domain.FailureKey("hank"), "not-a-number", time.Minute, "")

	locked, err := th.Locked(ctx, "hank")
	if locked {
		t.Fatalf("a corrupt counter must not report a lockout")
	}
	var ie *domain.InfrastructureError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InfrastructureError, got %v", err)
	}
}

func TestLoginThrottler_ScopedCountersAreSeparate(t *testing.T) {
	store := newMemSessionStore(newTestClock())
	login := NewLoginThrottler(store, 1, time.Minute)
	password := login.Scoped(domain.PasswordFailureKey)
	ctx := context.Background()

	var rl *domain.RateLimitError
	if err := password.RecordFailure(ctx, "u-1"); !errors.As(err, &rl) {
		t.Fatalf("expected the scoped throttler to keep the threshold, got %v", err)
	}
	if locked, _ := login.Locked(ctx, "u-1"); locked {
		t.Fatalf("scoped failures must not lock the login counter")
	}
	if _, ok, _ := store.Get(ctx, domain.PasswordFailureKey("u-1")); !ok {
		t.Fatalf("expected the counter under the scoped key")
	}
}
