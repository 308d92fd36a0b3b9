package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/knowledge-indexer/internal/platform/envutil"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	LockTTL  time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Addr:     envutil.String("REDIS_ADDR", ""),
		Password: envutil.String("REDIS_PASSWORD", ""),
		DB:       envutil.Int("REDIS_DB", 0),
		Channel:  envutil.String("REDIS_CHANNEL", "knowledge.indexing"),
		LockTTL:  envutil.Duration("REDIS_LOCK_TTL", 2*time.Minute),
	}
}

// Enabled reports whether a redis address is configured at all.
func (c Config) Enabled() bool { return c.Addr != "" }

// NewClient dials redis and verifies the connection with a ping.
func NewClient(cfg Config) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
