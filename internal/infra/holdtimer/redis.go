// Package holdtimer fires hold expiries through Redis key expiry
// notifications. Each held reservation gets a key whose TTL ends at the hold
// deadline; the expired event triggers the expiry. Redis may drop events, so
// the periodic sweep stays the source of truth.
package holdtimer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"booking-checkout/internal/pkg/config"
	"booking-checkout/internal/pkg/errs"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "hold:"

type Expirer interface {
	ExpireHold(ctx context.Context, reservationID uuid.UUID) error
}

type RedisScheduler struct {
	client *redis.Client
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisScheduler(client *redis.Client) *RedisScheduler {
	return &RedisScheduler{client: client}
}

func Key(id uuid.UUID) string {
	return keyPrefix + id.String()
}

func (s *RedisScheduler) Schedule(ctx context.Context, reservationID uuid.UUID, at time.Time) error {
	ttl := time.Until(at)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if err := s.client.Set(ctx, Key(reservationID), reservationID.String(), ttl).Err(); err != nil {
		return errs.Wrap(err, "schedule hold expiry")
	}
	return nil
}

func (s *RedisScheduler) Cancel(ctx context.Context, reservationID uuid.UUID) error {
	if err := s.client.Del(ctx, Key(reservationID)).Err(); err != nil {
		return errs.Wrap(err, "cancel hold expiry")
	}
	return nil
}

func (s *RedisScheduler) channel() string {
	return fmt.Sprintf("__keyevent@%d__:expired", s.client.Options().DB)
}

// EnableNotifications turns on expired-key events. Managed Redis often
// forbids CONFIG, in which case the setting must be applied out of band.
func (s *RedisScheduler) EnableNotifications(ctx context.Context) {
	if err := s.client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		slog.Warn("could not enable redis keyspace notifications",
			slog.String("error", err.Error()))
	}
}

// Listen blocks until ctx is done, passing every expired hold to e.
func (s *RedisScheduler) Listen(ctx context.Context, e Expirer) error {
	pubsub := s.client.PSubscribe(ctx, s.channel())
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return errs.Wrap(err, "subscribe to expired keys")
	}
	slog.Info("listening for hold expiries", slog.String("channel", s.channel()))

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			s.handle(ctx, msg.Payload, e)
		}
	}
}

func (s *RedisScheduler) handle(ctx context.Context, key string, e Expirer) {
	raw, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		slog.Warn("malformed hold key expired", slog.String("key", key))
		return
	}
	if err := e.ExpireHold(ctx, id); err != nil {
		slog.Warn("hold expiry from redis failed, sweeper will retry",
			slog.String("reservation_id", id.String()),
			slog.String("error", err.Error()))
	}
}
