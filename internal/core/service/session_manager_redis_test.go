package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
	redisstore "github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/db/redis"
	"github.com/lyySpace/DBMS-FinalProj/internal/infrastructure/token"
)

// redisFixture runs the manager against the real Redis adapter. advance moves
// the token clock and the Redis clock together.
type redisFixture struct {
	mgr   *SessionManager
	mr    *miniredis.Miniredis
	clock *testClock
}

func newRedisFixture(t *testing.T) *redisFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := newTestClock()
	sessions := redisstore.NewSessionStore(client)
	codec, err := token.NewCodec("unit-test-secret-unit-test-secret", "portal", token.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	mgr := NewSessionManager(
		newStubCredentialStore(),
		sessions,
		codec,
		NewLoginThrottler(sessions, 5, 5*time.Minute),
		SessionConfig{
			AccessTTL:   15 * time.Minute,
			RefreshTTL:  7 * 24 * time.Hour,
			MultiDevice: true,
			BcryptCost:  bcrypt.MinCost,
		},
		zerolog.Nop(),
		WithManagerClock(clock.Now),
	)
	return &redisFixture{mgr: mgr, mr: mr, clock: clock}
}

func (f *redisFixture) advance(d time.Duration) {
	f.clock.Advance(d)
	f.mr.FastForward(d)
}

func TestSessionManagerRedis_Lifecycle(t *testing.T) {
	f := newRedisFixture(t)
	ctx := context.Background()

	reg, err := f.mgr.Register(ctx, aliceInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	key := domain.SessionKey(reg.RefreshToken)
	if got, _ := f.mr.Get(key); got != reg.User.ID {
		t.Fatalf("expected session record for %s, got %q", reg.User.ID, got)
	}
	if ttl := f.mr.TTL(key); ttl != 7*24*time.Hour {
		t.Fatalf("expected refresh ttl on the record, got %s", ttl)
	}

	f.advance(16 * time.Minute)

	rot, err := f.mgr.Refresh(ctx, reg.AccessToken, reg.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if f.mr.Exists(key) {
		t.Fatalf("old session record must be consumed")
	}
	if _, err := f.mgr.Refresh(ctx, reg.AccessToken, reg.RefreshToken); !errors.Is(err, domain.ErrSessionExpiredOrInvalid) {
		t.Fatalf("expected replay to fail, got %v", err)
	}

	if err := f.mgr.Logout(ctx, rot.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if n, _ := f.mgr.ActiveSessions(ctx, reg.User.ID); n != 0 {
		t.Fatalf("expected no sessions after logout, got %d", n)
	}
}

func TestSessionManagerRedis_SessionExpiresWithRefreshTTL(t *testing.T) {
	f := newRedisFixture(t)
	ctx := context.Background()

	reg, err := f.mgr.Register(ctx, aliceInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// The record and the refresh token share one lifetime, so the signature
	// check rejects first.
	f.advance(7*24*time.Hour + time.Second)
	if _, err := f.mgr.Refresh(ctx, reg.AccessToken, reg.RefreshToken); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("expected an expired refresh token, got %v", err)
	}
}

func TestSessionManagerRedis_LockoutWindow(t *testing.T) {
	f := newRedisFixture(t)
	ctx := context.Background()

	if _, err := f.mgr.Register(ctx, aliceInput()); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := f.mgr.Login(ctx, "alice", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	_, err := f.mgr.Login(ctx, "alice", "wrong")
	var rl *domain.RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter <= 0 || rl.RetryAfter > 5*time.Minute {
		t.Fatalf("expected lockout with retry-after in (0, 5m], got %v", err)
	}
	if ttl := f.mr.TTL(domain.FailureKey("alice")); ttl != 5*time.Minute {
		t.Fatalf("expected counter ttl from the first failure only, got %s", ttl)
	}

	if _, err := f.mgr.Login(ctx, "alice", "secret1"); !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Fatalf("expected correct password to be blocked while locked, got %v", err)
	}

	f.advance(5*time.Minute + time.Second)
	if _, err := f.mgr.Login(ctx, "alice", "secret1"); err != nil {
		t.Fatalf("expected login after the window, got %v", err)
	}
	if f.mr.Exists(domain.FailureKey("alice")) {
		t.Fatalf("successful login must clear the counter")
	}
}

func TestSessionManagerRedis_LogoutAllUsesSubjectIndex(t *testing.T) {
	f := newRedisFixture(t)
	ctx := context.Background()

	alice, err := f.mgr.Register(ctx, aliceInput())
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	bobIn := aliceInput()
	bobIn.Username, bobIn.Email = "bob", "bob@x.com"
	bob, err := f.mgr.Register(ctx, bobIn)
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}
	if _, err := f.mgr.Login(ctx, "alice", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	members, err := f.mr.Members(domain.SessionIndexKey(alice.User.ID))
	if err != nil || len(members) != 2 {
		t.Fatalf("expected 2 indexed sessions for alice, got %v %v", members, err)
	}

	n, err := f.mgr.LogoutAll(ctx, alice.User.ID)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 revoked, got %d %v", n, err)
	}
	if active, _ := f.mgr.ActiveSessions(ctx, alice.User.ID); active != 0 {
		t.Fatalf("expected no sessions for alice, got %d", active)
	}
	if !f.mr.Exists(domain.SessionKey(bob.RefreshToken)) {
		t.Fatalf("bob's session must survive")
	}
	if active, _ := f.mgr.ActiveSessions(ctx, bob.User.ID); active != 1 {
		t.Fatalf("expected bob to keep 1 session, got %d", active)
	}
}
