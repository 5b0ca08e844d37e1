package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired holder cannot release a lock someone else now owns.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a cross-process try-lock on SET NX PX. Keys expire after ttl,
// which bounds how long a crashed sweeper blocks an execution.
type Locker struct {
	rdb    goredis.UniversalClient
	log    *logger.Logger
	prefix string
}

func NewLocker(rdb goredis.UniversalClient, baseLog *logger.Logger, prefix string) *Locker {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Locker{rdb: rdb, log: baseLog.With("component", "RedisLocker"), prefix: prefix}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	full := prefixed(l.prefix, "lock:"+key)
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return func() {}, false, nil
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{full}, token).Err(); err != nil {
				l.log.Warn("Failed to release lock", "key", key, "error", err)
			}
		})
	}, true, nil
}
