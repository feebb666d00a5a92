package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InvalidationBus broadcasts invalidated domain names so every gateway
// instance can drop them from its in-process cache.
type InvalidationBus struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

func NewInvalidationBus(client redis.UniversalClient, channel string, logger *zap.Logger) *InvalidationBus {
	return &InvalidationBus{client: client, channel: channel, logger: logger}
}

func (b *InvalidationBus) PublishInvalidation(ctx context.Context, domainName string) error {
	if err := b.client.Publish(ctx, b.channel, domainName).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Subscribe calls evict for every name received until ctx is done. ready, if
// non-nil, is closed once the subscription is confirmed by the server.
func (b *InvalidationBus) Subscribe(ctx context.Context, evict func(domainName string), ready chan<- struct{}) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	b.logger.Info("Listening for cache invalidations", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evict(msg.Payload)
		}
	}
}
