package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBridge relays ledger events between instances over Redis Pub/Sub.
//
// Publish hands the event to the local hub first and then sends it to the channel.
// Run receives events published by other instances and hands them to the local hub,
// so a subscriber connected to any instance sees every committed record exactly once.
type RedisBridge struct {
	client  *redis.Client
	channel string
	origin  string
	local   *Hub
}

// NewRedisBridge returns a bridge delivering into local.
func NewRedisBridge(client *redis.Client, channel string, local *Hub) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
	}
}

type envelope struct {
	Origin string             `json:"origin"`
	Event  domain.LedgerEvent `json:"event"`
}

// Publish delivers the event locally and sends it to the channel as JSON.
// Local subscribers are served even when Redis is down.
func (b *RedisBridge) Publish(ctx context.Context, event domain.LedgerEvent) error {
	_ = b.local.Publish(ctx, event)

	payload, err := json.Marshal(envelope{Origin: b.origin, Event: event})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}

// Run relays events of other instances from the channel into the local hub until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	l := zerolog.Ctx(ctx).With().Str("channel", b.channel).Logger()

	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before consuming.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	l.Info().Msg("redis notification bridge started")

	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("redis notification bridge stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				l.Warn().Err(err).Msg("malformed ledger event skipped")
				continue
			}

			// Already delivered by Publish.
			if env.Origin == b.origin {
				continue
			}

			_ = b.local.Publish(ctx, env.Event)
		}
	}
}
