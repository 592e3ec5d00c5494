package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "alchemy:lease:"

// releaseScript deletes the key only when it still holds the caller's token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements Store with SET NX PX, shared by every worker.
type RedisStore struct {
	rdb goredis.UniversalClient
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(rdb goredis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	l := &Lease{Key: key, Token: uuid.NewString()}
	ok, err := s.rdb.SetNX(ctx, redisKeyPrefix+key, l.Token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return l, nil
}

func (s *RedisStore) Release(ctx context.Context, l *Lease) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, s.rdb, []string{redisKeyPrefix + l.Key}, l.Token).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
