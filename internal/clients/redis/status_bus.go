package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
)

// StatusEvent is published whenever a document run or a job changes state.
type StatusEvent struct {
	Event               string    `json:"event"`
	KnowledgeID         uint64    `json:"knowledge_id,omitempty"`
	KnowledgeDocumentID uint64    `json:"knowledge_document_id,omitempty"`
	JobID               string    `json:"job_id,omitempty"`
	Status              string    `json:"status"`
	Stage               string    `json:"stage,omitempty"`
	Progress            int       `json:"progress,omitempty"`
	Error               string    `json:"error,omitempty"`
	At                  time.Time `json:"at"`
}

type StatusBus interface {
	Publish(ctx context.Context, ev StatusEvent) error
	Subscribe(ctx context.Context, onEvent func(StatusEvent)) error
}

type statusBus struct {
	log     *logger.Logger
	rdb     goredis.UniversalClient
	channel string
}

func NewStatusBus(rdb goredis.UniversalClient, channel string, baseLog *logger.Logger) StatusBus {
	return &statusBus{
		log:     baseLog.With("service", "RedisStatusBus"),
		rdb:     rdb,
		channel: channel,
	}
}

func (b *statusBus) Publish(ctx context.Context, ev StatusEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis status bus not initialized")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *statusBus) Subscribe(ctx context.Context, onEvent func(StatusEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis status bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev StatusEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad status payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}
