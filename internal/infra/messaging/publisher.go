// Package messaging delivers outbox events to the configured broker.
package messaging

import (
	"context"
	"log/slog"
	"strings"

	"booking-checkout/internal/pkg/config"
	"booking-checkout/internal/pkg/errs"
)

const (
	KindKafka    = "kafka"
	KindRabbitMQ = "rabbitmq"
	KindLog      = "log"
)

// Publisher returns nil only once the broker has acknowledged the message.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

func NewPublisher(cfg config.BrokerConfig) (Publisher, error) {
	switch strings.ToLower(cfg.Kind) {
	case KindKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errs.New("kafka publisher needs at least one broker")
		}
		return NewKafkaPublisher(cfg.KafkaBrokers), nil
	case KindRabbitMQ:
		return NewRabbitMQPublisher(cfg.RabbitMQURL), nil
	case KindLog, "":
		return NewLogPublisher(slog.Default()), nil
	default:
		return nil, errs.Newf("unknown broker kind %q", cfg.Kind)
	}
}

// LogPublisher writes events to the log. Local development only.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	p.logger.InfoContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("key", key),
		slog.String("payload", string(payload)))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
