package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
	"github.com/lyySpace/DBMS-FinalProj/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Clock
// ---------------------------------------------------------------------------

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ---------------------------------------------------------------------------
// In-memory session store
// ---------------------------------------------------------------------------

type memItem struct {
	value   string
	expires time.Time
}

type memSet struct {
	members map[string]struct{}
	expires time.Time
}

type memSessionStore struct {
	mu    sync.Mutex
	clock *testClock
	items map[string]memItem
	sets  map[string]*memSet

	// err, when set, is returned by every operation.
	err error
}

var errStoreDown = errors.New("connection refused")

func newMemSessionStore(clock *testClock) *memSessionStore {
	return &memSessionStore{clock: clock, items: make(map[string]memItem), sets: make(map[string]*memSet)}
}

func (s *memSessionStore) fail() error {
	if s.err != nil {
		return domain.Infra("memory", "op", s.err)
	}
	return nil
}

// live returns the item under key, evicting it when expired. Callers hold mu.
func (s *memSessionStore) live(key string) (memItem, bool) {
	it, ok := s.items[key]
	if !ok {
		return memItem{}, false
	}
	if !it.expires.After(s.clock.Now()) {
		delete(s.items, key)
		return memItem{}, false
	}
	return it, true
}

// liveSet returns the set under index, evicting it when expired. Callers hold mu.
func (s *memSessionStore) liveSet(index string) (*memSet, bool) {
	set, ok := s.sets[index]
	if !ok {
		return nil, false
	}
	if !set.expires.After(s.clock.Now()) {
		delete(s.sets, index)
		return nil, false
	}
	return set, true
}

func (s *memSessionStore) Set(_ context.Context, key, value string, ttl time.Duration, index string) error {
	if err := s.fail(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expires := s.clock.Now().Add(ttl)
	s.items[key] = memItem{value: value, expires: expires}
	if index != "" {
		set, ok := s.liveSet(index)
		if !ok {
			set = &memSet{members: make(map[string]struct{})}
			s.sets[index] = set
		}
		set.members[key] = struct{}{}
		set.expires = expires
	}
	return nil
}

func (s *memSessionStore) Get(_ context.Context, key string) (string, bool, error) {
	if err := s.fail(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.live(key)
	return it.value, ok, nil
}

func (s *memSessionStore) Delete(_ context.Context, key string) (bool, error) {
	if err := s.fail(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(key)
	delete(s.items, key)
	return ok, nil
}

func (s *memSessionStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	if err := s.fail(); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.live(key)
	if !ok {
		it = memItem{value: "0", expires: s.clock.Now().Add(ttl)}
	}
	n, err := strconv.ParseInt(it.value, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("not an integer: %w", err)
	}
	n++
	it.value = strconv.FormatInt(n, 10)
	s.items[key] = it
	return n, it.expires.Sub(s.clock.Now()), nil
}

func (s *memSessionStore) Members(_ context.Context, index string) ([]string, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.liveSet(index)
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(set.members))
	for k := range set.members {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *memSessionStore) Unindex(_ context.Context, index string, keys ...string) error {
	if err := s.fail(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.liveSet(index); ok {
		for _, k := range keys {
			delete(set.members, k)
		}
	}
	return nil
}

func (s *memSessionStore) Ping(context.Context) error { return s.fail() }

func (s *memSessionStore) indexSize(index string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.liveSet(index); ok {
		return len(set.members)
	}
	return 0
}

func (s *memSessionStore) countPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.items {
		if _, ok := s.live(k); ok && strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Credential store stub
// ---------------------------------------------------------------------------

type stubCredentialStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	profiles map[string]bool
	seq      int
	calls    int

	// commitErr simulates a commit failure after onCreated succeeded.
	commitErr error
	// retries re-runs onCreated as a store retrying its transaction would.
	retries int
}

func newStubCredentialStore() *stubCredentialStore {
	return &stubCredentialStore{users: make(map[string]*domain.User), profiles: make(map[string]bool)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubCredentialStore) Create(ctx context.Context, user *domain.User, onCreated ports.OnCreated) (*domain.User, error) {
	r.mu.Lock()
	r.calls++
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			r.mu.Unlock()
			return nil, domain.ErrUserExists
		}
	}
	r.seq++
	created := cloneUser(user)
	created.ID = fmt.Sprintf("user-%d", r.seq)
	r.mu.Unlock()

	for i := 0; i <= r.retries; i++ {
		if err := onCreated(ctx, cloneUser(created)); err != nil {
			return nil, err
		}
	}
	if r.commitErr != nil {
		return nil, r.commitErr
	}

	r.mu.Lock()
	r.users[created.ID] = cloneUser(created)
	r.mu.Unlock()
	return cloneUser(created), nil
}

func (r *stubCredentialStore) FindByLogin(_ context.Context, identifier string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	for _, u := range r.users {
		if u.Username == identifier || u.Email == identifier {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (r *stubCredentialStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	u, ok := r.users[id]
	if !ok || u.IsDeleted {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubCredentialStore) HasProfile(_ context.Context, id string, _ domain.Role) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profiles[id], nil
}

func (r *stubCredentialStore) ReplacePasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *stubCredentialStore) SetAdmin(_ context.Context, id string, admin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.IsAdmin = admin
	return nil
}

func (r *stubCredentialStore) Ping(context.Context) error { return nil }

func (r *stubCredentialStore) softDelete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.IsDeleted = true
	}
}

func (r *stubCredentialStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
