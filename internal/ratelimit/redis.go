package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisWindow keeps the sliding log in a sorted set so several server
// processes share one budget. Scores are unix nanoseconds.
type RedisWindow struct {
	client *redis.Client
	key    string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisWindow(client *redis.Client, key string, limit int, window time.Duration) *RedisWindow {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if key == "" {
		key = "voicespese:extraction:window"
	}
	return &RedisWindow{client: client, key: key, limit: limit, window: window, now: time.Now}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// allowScript trims, counts and admits in one step so concurrent callers
// cannot all observe a count below the limit.
// KEYS[1] window key; ARGV: cutoff, now, limit, member, ttl ms.
var allowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

func (w *RedisWindow) Allow(ctx context.Context) (bool, error) {
	now := w.now()
	cutoff := now.Add(-w.window).UnixNano()

	admitted, err := allowScript.Run(ctx, w.client, []string{w.key},
		strconv.FormatInt(cutoff, 10),
		strconv.FormatInt(now.UnixNano(), 10),
		w.limit,
		uuid.NewString(),
		w.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis window: %w", err)
	}
	return admitted == 1, nil
}
