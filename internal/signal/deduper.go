package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Once guards side effects that must fire a single time per key under
// at-least-once delivery, such as escalation reminders.
type Once interface {
	// AcquireOnce returns true the first time a (scope, id) pair is seen
	// within the TTL window, false for duplicates.
	AcquireOnce(ctx context.Context, scope, id string) bool
}

// RedisOnce coordinates once-only delivery across processes via SetNX.
// When redis is unavailable it fails open: better a duplicate reminder
// than a silently dropped one.
type RedisOnce struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisOnce(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisOnce {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisOnce{rdb: rdb, ttl: ttl, logger: logger}
}

func (d *RedisOnce) AcquireOnce(ctx context.Context, scope, id string) bool {
	key := fmt.Sprintf("dedup:%s:%s", scope, id)
	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("redis dedup check failed, allowing delivery",
			zap.String("scope", scope),
			zap.String("id", id),
			zap.Error(err),
		)
		return true
	}
	if !ok {
		d.logger.Info("skipped duplicate delivery",
			zap.String("scope", scope),
			zap.String("id", id),
		)
	}
	return ok
}

// MemoryOnce is the single-process fallback used when no redis is
// configured (and in tests).
type MemoryOnce struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryOnce(ttl time.Duration) *MemoryOnce {
	return &MemoryOnce{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// SetNow overrides the clock, for tests.
func (d *MemoryOnce) SetNow(now func() time.Time) {
	d.mu.Lock()
	d.now = now
	d.mu.Unlock()
}

func (d *MemoryOnce) AcquireOnce(_ context.Context, scope, id string) bool {
	key := scope + ":" + id
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if at, ok := d.seen[key]; ok && (d.ttl <= 0 || now.Sub(at) < d.ttl) {
		return false
	}
	d.seen[key] = now
	return true
}
