package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Locker shared by every process talking to the same Redis. The
// key is held with SET NX PX and released only by the token that set it.
// TTL bounds how long a crashed holder can block a key.
type Redis struct {
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	retry   time.Duration
	release time.Duration
	log     *slog.Logger
}

type RedisOption func(*Redis)

func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.retry = d
		}
	}
}

func WithLogger(log *slog.Logger) RedisOption {
	return func(r *Redis) {
		if log != nil {
			r.log = log
		}
	}
}

var _ Locker = (*Redis)(nil)

var redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration, opts ...RedisOption) *Redis {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "slotlock"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	r := &Redis{
		rdb:     rdb,
		prefix:  prefix,
		ttl:     ttl,
		retry:   25 * time.Millisecond,
		release: 2 * time.Second,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(slog.String("component", "lock.redis"))
	return r
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := r.keyFor(key)
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.rdb.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if ok {
			return r.releaseFunc(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// keyFor joins prefix and key with a single colon.
func (r *Redis) keyFor(key string) string {
	return r.prefix + ":" + key
}

func (r *Redis) releaseFunc(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.release)
			defer cancel()
			if err := redisReleaseScript.Run(ctx, r.rdb, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				r.log.Warn("lock release failed; key will expire", slog.String("key", redisKey), slog.Any("err", err))
			}
		})
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
