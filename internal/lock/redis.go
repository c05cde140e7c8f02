package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when the caller still holds it.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// RedisLocker is the multi-instance FundLocker: one SetNX-held key per
// fund with a TTL guarding against crashed holders.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker creates a RedisLocker from configuration.
func NewRedisLocker(cfg Config) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "fundlock:"
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}, nil
}

// Acquire polls SetNX until the fund's key is won or ctx is done. The
// release function deletes the key only if this caller still owns it.
func (r *RedisLocker) Acquire(ctx context.Context, fundID uuid.UUID) (func(), error) {
	key := r.prefix + fundID.String()
	token := newToken()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx failed: %w", err)
		}
		if ok {
			return func() {
				// Release on a fresh context so a cancelled unit of
				// work still frees its lock.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				r.client.Eval(releaseCtx, releaseScript, []string{key}, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquiring lock for fund %s: %w", fundID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close implements FundLocker.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}

func newToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
