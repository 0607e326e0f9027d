// Package relay shares committed status events between server instances
// over Redis pub/sub.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultChannel = "booking-status-events"

type envelope struct {
	Origin string                  `json:"origin"`
	Event  types.StatusUpdateEvent `json:"event"`
}

// Relay publishes events tagged with its own origin id and delivers only
// events from other instances to the local handler.
type Relay struct {
	log     zerolog.Logger
	client  *redis.Client
	channel string
	origin  string
}

func New(logger zerolog.Logger, client *redis.Client, channel string) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	origin := uuid.NewString()

	return &Relay{
		log:     logger.With().Str("component", "relay").Str("origin", origin).Logger(),
		client:  client,
		channel: channel,
		origin:  origin,
	}
}

func (r *Relay) Origin() string {
	return r.origin
}

func (r *Relay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Relay) PublishStatus(ctx context.Context, ev types.StatusUpdateEvent) error {
	payload, err := json.Marshal(envelope{Origin: r.origin, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed by Redis.
func (r *Relay) Subscribe(ctx context.Context) (*redis.PubSub, error) {
	ps := r.client.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}
	return ps, nil
}

// Consume hands remote events to handle until ctx is done or the
// subscription is closed.
func (r *Relay) Consume(ctx context.Context, ps *redis.PubSub, handle func(types.StatusUpdateEvent)) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn().Err(err).Msg("discarding malformed relay message")
				continue
			}
			if env.Origin == r.origin {
				continue
			}

			r.log.Debug().Str("booking_id", env.Event.BookingId).Str("from", env.Origin).Msg("relayed status event")
			handle(env.Event)
		}
	}
}

// Run subscribes and consumes until ctx is done.
func (r *Relay) Run(ctx context.Context, handle func(types.StatusUpdateEvent)) error {
	ps, err := r.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer ps.Close()

	r.Consume(ctx, ps, handle)
	return nil
}
