package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/events"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/envutil"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

type Config struct {
	Brokers []string
	Topic   string
}

func ConfigFromEnv() Config {
	return Config{
		Brokers: envutil.List("KAFKA_BROKERS", nil),
		Topic:   envutil.String("KAFKA_EXECUTION_TOPIC", "playbook-executions"),
	}
}

func (c Config) Enabled() bool { return len(c.Brokers) > 0 && strings.TrimSpace(c.Topic) != "" }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes execution lifecycle events keyed by execution id, so all
// events of one execution land on one partition in order.
type Publisher struct {
	log    *logger.Logger
	writer messageWriter
}

func NewPublisher(baseLog *logger.Logger, cfg Config) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("kafka publisher needs KAFKA_BROKERS and a topic")
	}
	return newPublisher(baseLog, &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}), nil
}

func newPublisher(baseLog *logger.Logger, w messageWriter) *Publisher {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Publisher{log: baseLog.With("service", "KafkaEventPublisher"), writer: w}
}

func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:     []byte(ev.ExecutionID.String()),
		Value:   data,
		Time:    ev.OccurredAt,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(ev.Type)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", ev.Type, err)
	}
	p.log.Debug("Sent event to Kafka", "type", ev.Type, "execution_id", ev.ExecutionID)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
