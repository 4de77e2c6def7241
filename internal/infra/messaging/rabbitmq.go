package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"booking-checkout/internal/pkg/errs"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQPublisher publishes to a durable queue named after the topic, on a
// channel in confirm mode. The connection is dialed lazily and redialed after
// the broker drops it.
type RabbitMQPublisher struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

func NewRabbitMQPublisher(url string) *RabbitMQPublisher {
	return &RabbitMQPublisher{url: url, declared: map[string]bool{}}
}

func (p *RabbitMQPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, errs.Wrap(err, "rabbitmq dial")
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, errs.Wrap(err, "rabbitmq channel")
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, errs.Wrap(err, "rabbitmq confirm mode")
	}
	p.ch = ch
	p.declared = map[string]bool{}
	return ch, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	if !p.declared[topic] {
		if _, err := ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			return errs.Wrapf(err, "rabbitmq declare %s", topic)
		}
		p.declared[topic] = true
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	if err != nil {
		return errs.Wrapf(err, "rabbitmq publish to %s", topic)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return errs.Wrapf(err, "rabbitmq confirm for %s", topic)
	}
	if !acked {
		return errs.Newf("rabbitmq nacked message %s", key)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return errs.Wrap(err, "rabbitmq close")
		}
	}
	return nil
}
