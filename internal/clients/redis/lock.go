package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// Only the holder's token may delete the key.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a keylock.Locker backed by SET NX PX. It is used when several
// indexer processes may write segments for the same document.
type Locker struct {
	rdb    goredis.UniversalClient
	log    *logger.Logger
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

func NewLocker(rdb goredis.UniversalClient, ttl time.Duration, baseLog *logger.Logger) *Locker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Locker{
		rdb:    rdb,
		log:    baseLog.With("service", "RedisLocker"),
		prefix: "lock:",
		ttl:    ttl,
		poll:   50 * time.Millisecond,
	}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	if l == nil || l.rdb == nil {
		return nil, errors.New("redis locker not initialized")
	}
	full := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", full, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// The caller's ctx may already be done; release must still run.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			l.log.Warn("lock release failed", "key", full, "error", err)
		}
	}, nil
}
