package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/events"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

// EventBus fans execution lifecycle events out over redis pub/sub.
type EventBus interface {
	events.Publisher
	StartForwarder(ctx context.Context, onEvent func(ev events.Event)) error
}

type eventBus struct {
	log     *logger.Logger
	rdb     goredis.UniversalClient
	channel string
}

func NewEventBus(rdb goredis.UniversalClient, baseLog *logger.Logger, prefix string) (EventBus, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &eventBus{
		log:     baseLog.With("service", "RedisEventBus"),
		rdb:     rdb,
		channel: prefixed(prefix, "playbook-events"),
	}, nil
}

func (b *eventBus) Publish(ctx context.Context, ev events.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes and calls onEvent for every event until ctx is
// done. It returns once the subscription is confirmed.
func (b *eventBus) StartForwarder(ctx context.Context, onEvent func(ev events.Event)) error {
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
				var ev events.Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad playbook event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}
