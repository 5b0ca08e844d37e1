package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/upliftcs/upliftcs-backend/internal/clients/kafka"
	"github.com/upliftcs/upliftcs-backend/internal/clients/openai"
	"github.com/upliftcs/upliftcs-backend/internal/clients/redis"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/engine"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/events"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
	"github.com/upliftcs/upliftcs-backend/internal/temporalx"
)

type Clients struct {
	Redis    *goredis.Client
	EventBus redis.EventBus
	Kafka    *kafka.Publisher
	OpenAI   openai.Client
	Temporal temporalsdkclient.Client

	// Resolved from the above.
	Locker engine.Locker
	Events events.Publisher
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return out, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
		out.Locker = redis.NewLocker(rdb, log, cfg.Redis.Prefix)
		bus, err := redis.NewEventBus(rdb, log, cfg.Redis.Prefix)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init redis event bus: %w", err)
		}
		out.EventBus = bus
	}

	// Kafka
	if cfg.Kafka.Enabled() {
		pub, err := kafka.NewPublisher(log, cfg.Kafka)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init kafka publisher: %w", err)
		}
		out.Kafka = pub
	}

	switch {
	case out.Kafka != nil:
		out.Events = out.Kafka
	case out.EventBus != nil:
		out.Events = out.EventBus
	default:
		out.Events = events.Noop()
	}

	// OpenAI
	if cfg.OpenAI.APIKey != "" {
		c, err := openai.NewClient(log, cfg.OpenAI)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		out.OpenAI = c
	} else {
		log.Warn("OPENAI_API_KEY not set; insights and emails use templates")
	}

	// Temporal
	tc, err := temporalx.NewClient(ctx, log, cfg.Temporal)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}
	out.Temporal = tc

	return out, nil
}

// generator keeps a missing client a nil interface.
func (c Clients) generator() engine.Generator {
	if c.OpenAI == nil {
		return nil
	}
	return c.OpenAI
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Kafka != nil {
		_ = c.Kafka.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
