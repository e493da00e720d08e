package events

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	domain "github.com/R3E-Network/splitpay/internal/app/domain/split"
	splitsvc "github.com/R3E-Network/splitpay/internal/app/services/split"
	"github.com/R3E-Network/splitpay/pkg/logger"
)

// DefaultChannel is the Redis pub/sub channel events publish to when no
// channel is configured.
const DefaultChannel = "splitpay.events"

// RedisPublisher broadcasts events over Redis pub/sub as JSON so external
// consumers (webhooks, indexers) can follow the ledger without polling.
// Publish failures are logged and swallowed: audit delivery is best effort
// and must never fail the lifecycle operation behind it.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

var _ splitsvc.Notifier = (*RedisPublisher)(nil)

// NewRedisPublisher creates a publisher on the given client and channel.
func NewRedisPublisher(client *redis.Client, channel string, log *logger.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &RedisPublisher{client: client, channel: channel, log: log}
}

func (p *RedisPublisher) Notify(ctx context.Context, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.WithError(err).WithField("event_id", ev.ID).Error("marshal event")
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.WithError(err).
			WithField("event_id", ev.ID).
			WithField("channel", p.channel).
			Warn("publish event")
	}
}

// Close releases the underlying Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Fanout delivers each event to every notifier in order.
type Fanout []splitsvc.Notifier

var _ splitsvc.Notifier = (Fanout)(nil)

func (f Fanout) Notify(ctx context.Context, ev domain.Event) {
	for _, n := range f {
		n.Notify(ctx, ev)
	}
}
