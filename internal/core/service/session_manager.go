package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
	"github.com/lyySpace/DBMS-FinalProj/internal/core/ports"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	minUsernameLen = 3
	maxFieldLen    = 50
	minPasswordLen = 6
)

// SessionConfig tunes token lifetimes and the device policy.
type SessionConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// MultiDevice keeps earlier sessions alive on login. When false a login
	// revokes every other session of the subject.
	MultiDevice bool
	BcryptCost  int
}

// SessionManager implements ports.SessionManager.
type SessionManager struct {
	users    ports.CredentialStore
	sessions ports.SessionStore
	codec    ports.TokenCodec
	throttle *LoginThrottler
	// pwThrottle counts wrong current passwords on password change, per subject.
	pwThrottle *LoginThrottler
	cfg        SessionConfig
	now        func() time.Time
	log        zerolog.Logger
	dummyHash  []byte
}

var _ ports.SessionManager = (*SessionManager)(nil)

// ManagerOption customises a SessionManager.
type ManagerOption func(*SessionManager)

// WithManagerClock replaces the clock used to decide whether an access token
// has expired. It must agree with the codec's clock.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) { m.now = now }
}

func NewSessionManager(
	users ports.CredentialStore,
	sessions ports.SessionStore,
	codec ports.TokenCodec,
	throttle *LoginThrottler,
	cfg SessionConfig,
	log zerolog.Logger,
	opts ...ManagerOption,
) *SessionManager {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	m := &SessionManager{
		users:    users,
		sessions: sessions,
		codec:    codec,
		throttle:   throttle,
		pwThrottle: throttle.Scoped(domain.PasswordFailureKey),
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(m)
	}

	// Unknown identifiers are compared against this hash so they cost the
	// same as a wrong password.
	m.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cfg.BcryptCost)
	return m
}

// Register creates the identity and its first session. The session record is
// written inside the registration transaction, so either both persist or
// neither does.
func (m *SessionManager) Register(ctx context.Context, in ports.RegisterInput) (*domain.AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateRegister(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), m.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		RealName:     in.RealName,
		Nickname:     in.Nickname,
		Role:         in.Role,
		RegisteredAt: m.now().UTC(),
	}

	var (
		pair      *domain.TokenPair
		issuedFor string
	)
	created, err := m.users.Create(ctx, user, func(ctx context.Context, u *domain.User) error {
		if pair != nil {
			// The store retried the transaction.
			m.dropSession(ctx, issuedFor, pair.RefreshToken)
			pair = nil
		}
		p, err := m.issueSession(ctx, u)
		if err != nil {
			return err
		}
		pair, issuedFor = p, u.ID
		return nil
	})
	if err != nil {
		if pair != nil {
			// The transaction failed after the session was written.
			m.dropSession(ctx, issuedFor, pair.RefreshToken)
		}
		return nil, err
	}

	m.log.Info().Str("user_id", created.ID).Str("role", string(created.Role)).Msg("user registered")

	return &domain.AuthResult{
		User:        created,
		TokenPair:   *pair,
		NeedProfile: !created.IsAdmin,
	}, nil
}

// Login authenticates identifier (username or email) and opens a session.
// Unknown identifiers and wrong passwords are indistinguishable to the caller.
func (m *SessionManager) Login(ctx context.Context, identifier, password string) (*domain.AuthResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, domain.NewValidationError("identifier and password are required")
	}

	locked, err := m.throttle.Locked(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, m.loginFailed(ctx, identifier)
	}

	user, err := m.users.FindByLogin(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if user == nil || user.IsDeleted {
		_ = bcrypt.CompareHashAndPassword(m.dummyHash, []byte(password))
		return nil, m.loginFailed(ctx, identifier)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, m.loginFailed(ctx, identifier)
	}

	if err := m.throttle.Clear(ctx, identifier); err != nil {
		return nil, err
	}

	if !m.cfg.MultiDevice {
		if n, err := m.revokeAll(ctx, user.ID); err != nil {
			m.log.Warn().Err(err).Str("user_id", user.ID).Int("revoked", n).Msg("failed to prune old sessions")
		}
	}

	pair, err := m.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	needProfile, err := m.needProfile(ctx, user)
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("login succeeded")

	return &domain.AuthResult{User: user, TokenPair: *pair, NeedProfile: needProfile}, nil
}

// Refresh rotates a session. The old refresh token is consumed even if the
// new pair is never used.
func (m *SessionManager) Refresh(ctx context.Context, accessToken, refreshToken string) (*domain.RefreshResult, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, domain.NewValidationError("accessToken and refreshToken are required")
	}

	access, err := m.codec.Verify(accessToken, domain.TokenAccess, ports.VerifyOptions{IgnoreExpiry: true})
	if err != nil {
		return nil, domain.ErrInvalidAccessToken
	}
	if !access.Expired(m.now()) {
		return nil, domain.ErrAccessTokenStillValid
	}

	refresh, err := m.codec.Verify(refreshToken, domain.TokenRefresh, ports.VerifyOptions{})
	if err != nil {
		return nil, domain.ErrInvalidRefreshToken
	}

	key := domain.SessionKey(refreshToken)
	owner, ok, err := m.sessions.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSessionExpiredOrInvalid
	}

	if access.Subject != refresh.Subject || refresh.Subject != owner {
		m.log.Warn().Str("user_id", owner).Msg("refresh with mismatched token pair")
		return nil, domain.ErrTokenMismatch
	}

	// Single use: of concurrent refreshes with the same token only the one
	// that actually deletes the record may continue.
	deleted, err := m.sessions.Delete(ctx, key)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, domain.ErrSessionExpiredOrInvalid
	}
	m.unindex(ctx, owner, key)

	user, err := m.users.FindByID(ctx, owner)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNoLongerExists
		}
		return nil, err
	}

	pair, err := m.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	needProfile, err := m.needProfile(ctx, user)
	if err != nil {
		return nil, err
	}

	m.log.Debug().Str("user_id", user.ID).Msg("session rotated")

	return &domain.RefreshResult{TokenPair: *pair, Role: user.Role, NeedProfile: needProfile}, nil
}

// Logout deletes the session of refreshToken. Logging out an unknown or
// already revoked token is not an error.
func (m *SessionManager) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	key := domain.SessionKey(refreshToken)
	owner, ok, err := m.sessions.Get(ctx, key)
	if err != nil || !ok {
		return err
	}
	if _, err := m.sessions.Delete(ctx, key); err != nil {
		return err
	}
	m.unindex(ctx, owner, key)
	return nil
}

// LogoutAll revokes every session of subject and returns how many were removed.
func (m *SessionManager) LogoutAll(ctx context.Context, subject string) (int, error) {
	n, err := m.revokeAll(ctx, subject)
	if err != nil {
		return n, err
	}
	m.log.Info().Str("user_id", subject).Int("revoked", n).Msg("all sessions revoked")
	return n, nil
}

// ActiveSessions counts the live session records of subject. Index entries
// of records that already expired are pruned on the way.
func (m *SessionManager) ActiveSessions(ctx context.Context, subject string) (int, error) {
	live, stale, err := m.indexedSessions(ctx, subject)
	if err != nil {
		return 0, err
	}
	m.unindex(ctx, subject, stale...)
	return len(live), nil
}

// ChangePassword replaces the password hash of subject and revokes all of
// its sessions.
func (m *SessionManager) ChangePassword(ctx context.Context, subject, current, next string) error {
	if l := utf8.RuneCountInString(next); l < minPasswordLen || l > maxFieldLen {
		return domain.NewValidationError(fmt.Sprintf("password must be %d-%d characters", minPasswordLen, maxFieldLen))
	}

	user, err := m.users.FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrUserNoLongerExists
		}
		return err
	}

	locked, err := m.pwThrottle.Locked(ctx, subject)
	if err != nil {
		return err
	}
	if locked || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return m.failed(ctx, m.pwThrottle, subject)
	}
	if err := m.pwThrottle.Clear(ctx, subject); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), m.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := m.users.ReplacePasswordHash(ctx, subject, string(hash)); err != nil {
		return err
	}

	_, err = m.LogoutAll(ctx, subject)
	return err
}

// VerifyAccessToken authorises a request-level access token.
func (m *SessionManager) VerifyAccessToken(token string) (*domain.Claims, error) {
	claims, err := m.codec.Verify(token, domain.TokenAccess, ports.VerifyOptions{})
	if err != nil {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	return claims, nil
}

// IsAdmin reads the admin flag from the credential store. Tokens do not
// carry it, so a revoked flag takes effect on the next request.
func (m *SessionManager) IsAdmin(ctx context.Context, subject string) (bool, error) {
	user, err := m.users.FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return false, domain.ErrUserNoLongerExists
		}
		return false, err
	}
	return user.IsAdmin, nil
}

// SetAdmin grants or revokes the admin flag of target. An unknown target is
// domain.ErrUserNotFound.
func (m *SessionManager) SetAdmin(ctx context.Context, target string, admin bool) error {
	if err := m.users.SetAdmin(ctx, target, admin); err != nil {
		return err
	}
	m.log.Info().Str("user_id", target).Bool("is_admin", admin).Msg("admin flag updated")
	return nil
}

func (m *SessionManager) issueSession(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	access, err := m.codec.Issue(user.ID, user.Role, domain.TokenAccess, m.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.codec.Issue(user.ID, user.Role, domain.TokenRefresh, m.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	key := domain.SessionKey(refresh)
	if err := m.sessions.Set(ctx, key, user.ID, m.cfg.RefreshTTL, domain.SessionIndexKey(user.ID)); err != nil {
		return nil, err
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *SessionManager) dropSession(ctx context.Context, subject, refreshToken string) {
	key := domain.SessionKey(refreshToken)
	if _, err := m.sessions.Delete(ctx, key); err != nil {
		m.log.Error().Err(err).Msg("failed to drop orphaned session")
		return
	}
	m.unindex(ctx, subject, key)
}

// unindex drops keys from the session index of subject. A failure only
// leaves stale entries, which later reads prune.
func (m *SessionManager) unindex(ctx context.Context, subject string, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := m.sessions.Unindex(ctx, domain.SessionIndexKey(subject), keys...); err != nil {
		m.log.Warn().Err(err).Str("user_id", subject).Msg("failed to prune session index")
	}
}

// indexedSessions splits the session index of subject into keys whose record
// is still live and owned by subject, and stale keys.
func (m *SessionManager) indexedSessions(ctx context.Context, subject string) (live, stale []string, err error) {
	keys, err := m.sessions.Members(ctx, domain.SessionIndexKey(subject))
	if err != nil {
		return nil, nil, err
	}
	for _, key := range keys {
		owner, ok, err := m.sessions.Get(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		if ok && owner == subject {
			live = append(live, key)
		} else {
			stale = append(stale, key)
		}
	}
	return live, stale, nil
}

// revokeAll deletes every session record owned by subject. Deletion keeps
// going past individual failures and reports the first one.
func (m *SessionManager) revokeAll(ctx context.Context, subject string) (int, error) {
	live, stale, err := m.indexedSessions(ctx, subject)
	if err != nil {
		return 0, err
	}

	var (
		done     = stale
		firstErr error
		n        int
	)
	for _, key := range live {
		deleted, err := m.sessions.Delete(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if deleted {
			n++
		}
		done = append(done, key)
	}
	m.unindex(ctx, subject, done...)
	return n, firstErr
}

func (m *SessionManager) loginFailed(ctx context.Context, identifier string) error {
	return m.failed(ctx, m.throttle, identifier)
}

// failed records a failed password check with th and returns the error
// reported to the caller.
func (m *SessionManager) failed(ctx context.Context, th *LoginThrottler, identifier string) error {
	err := th.RecordFailure(ctx, identifier)
	if err == nil {
		return domain.ErrInvalidCredentials
	}
	var rl *domain.RateLimitError
	if errors.As(err, &rl) {
		m.log.Warn().Str("identifier", identifier).Dur("retry_after", rl.RetryAfter).Msg("password checks locked out")
	}
	return err
}

func (m *SessionManager) needProfile(ctx context.Context, user *domain.User) (bool, error) {
	if user.IsAdmin {
		return false, nil
	}
	has, err := m.users.HasProfile(ctx, user.ID, user.Role)
	if err != nil {
		return false, err
	}
	return !has, nil
}

func validateRegister(in ports.RegisterInput) error {
	var fields []string
	checkLen := func(name, v string, min int) {
		if l := utf8.RuneCountInString(v); l < min || l > maxFieldLen {
			fields = append(fields, fmt.Sprintf("%s must be %d-%d characters", name, min, maxFieldLen))
		}
	}

	checkLen("username", in.Username, minUsernameLen)
	checkLen("password", in.Password, minPasswordLen)
	checkLen("real_name", in.RealName, 1)
	checkLen("nickname", in.Nickname, 1)
	if in.Email == "" || len(in.Email) > maxFieldLen || !strings.Contains(in.Email, "@") {
		fields = append(fields, "email must be a valid email")
	}
	if !in.Role.Valid() {
		fields = append(fields, "role must be one of: student department company")
	}

	if len(fields) > 0 {
		return domain.NewValidationError(fields...)
	}
	return nil
}
