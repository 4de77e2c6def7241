package commands

import (
	"context"
	"time"

	"booking-checkout/internal/domain/payment"
	"booking-checkout/internal/pkg/config"

	"github.com/google/uuid"
)

// PaymentGateway is the platform payment provider acting on behalf of the
// listing owner's connected account.
type PaymentGateway interface {
	Tokenize(ctx context.Context, in payment.Instrument, owner payment.OwnerCredential) (string, error)
	Charge(ctx context.Context, req payment.ChargeRequest, owner payment.OwnerCredential) (payment.Outcome, error)
	CheckStatus(ctx context.Context, externalID string, owner payment.OwnerCredential) (payment.Status, payment.Detail, error)
	Cancel(ctx context.Context, externalID string, owner payment.OwnerCredential) error
}

type WebhookVerifier interface {
	// ParseWebhook returns ok=false for verified events that carry no payment outcome.
	ParseWebhook(payload []byte, signature string) (payment.Notification, bool, error)
}

// HoldScheduler fires an expiry for a reservation at a given time. Firing is
// best effort; the periodic sweep catches anything a scheduler misses.
type HoldScheduler interface {
	Schedule(ctx context.Context, reservationID uuid.UUID, at time.Time) error
	Cancel(ctx context.Context, reservationID uuid.UUID) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

type Metrics interface {
	ObserveCheckout(outcome string)
	ObserveTransition(source, to string)
}

type NopMetrics struct{}

func (NopMetrics) ObserveCheckout(string)           {}
func (NopMetrics) ObserveTransition(string, string) {}

type NopScheduler struct{}

func (NopScheduler) Schedule(context.Context, uuid.UUID, time.Time) error { return nil }
func (NopScheduler) Cancel(context.Context, uuid.UUID) error              { return nil }

// Transition sources, used for metrics and logs.
const (
	SourceCheckout = "checkout"
	SourceWebhook  = "webhook"
	SourcePoll     = "poll"
	SourceExpiry   = "expiry"
)

type Settings struct {
	Currency           string
	HoldTTL            time.Duration
	GatewayMaxAttempts int
	GatewayBackoff     time.Duration
	PollInterval       time.Duration
	MaxQuantityPerLine int
	IdempotencyTTL     time.Duration
	EventTopic         string
	BatchSize          int
	RelayMaxAttempts   int
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		Currency:           cfg.Checkout.Currency,
		HoldTTL:            cfg.Checkout.HoldTTL,
		GatewayMaxAttempts: cfg.Checkout.GatewayMaxAttempts,
		GatewayBackoff:     cfg.Checkout.GatewayBackoff,
		PollInterval:       cfg.Checkout.PollInterval,
		MaxQuantityPerLine: cfg.Checkout.MaxQuantityPerLine,
		IdempotencyTTL:     cfg.Checkout.IdempotencyTTL,
		EventTopic:         cfg.Broker.Topic,
		BatchSize:          cfg.Broker.RelayBatch,
		RelayMaxAttempts:   cfg.Broker.MaxAttempts,
	}
}
