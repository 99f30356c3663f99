package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lyySpace/DBMS-FinalProj/internal/core/domain"
	"github.com/lyySpace/DBMS-FinalProj/internal/core/ports"
)

const storeName = "redis"

// incrScript increments a counter and applies the expiry on the first write
// (or when the key somehow lost it), returning {count, pttl_ms}.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// SessionStore implements ports.SessionStore on a single Redis deployment.
// Keys: refresh:<sha256 hex> -> subject id, user:sessions:<id> -> set of
// session keys, login:fail:<identifier> -> count.
type SessionStore struct {
	client *redis.Client
}

var _ ports.SessionStore = (*SessionStore)(nil)

// NewSessionStore wraps the given Redis client.
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

// Set writes the record and its index entry in one MULTI/EXEC.
func (s *SessionStore) Set(ctx context.Context, key, value string, ttl time.Duration, index string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, value, ttl)
		if index != "" {
			p.SAdd(ctx, index, key)
			p.PExpire(ctx, index, ttl)
		}
		return nil
	})
	if err != nil {
		return domain.Infra(storeName, "set", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.Infra(storeName, "get", err)
	}
	return v, true, nil
}

func (s *SessionStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, domain.Infra(storeName, "del", err)
	}
	return n > 0, nil
}

func (s *SessionStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	res, err := incrScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, domain.Infra(storeName, "incr", err)
	}
	if len(res) != 2 {
		return 0, 0, domain.Infra(storeName, "incr", errors.New("unexpected script reply"))
	}
	remaining := time.Duration(res[1]) * time.Millisecond
	if remaining < 0 {
		remaining = 0
	}
	return res[0], remaining, nil
}

func (s *SessionStore) Members(ctx context.Context, index string) ([]string, error) {
	keys, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, domain.Infra(storeName, "smembers", err)
	}
	return keys, nil
}

func (s *SessionStore) Unindex(ctx context.Context, index string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	if err := s.client.SRem(ctx, index, members...).Err(); err != nil {
		return domain.Infra(storeName, "srem", err)
	}
	return nil
}

func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return domain.Infra(storeName, "ping", err)
	}
	return nil
}
