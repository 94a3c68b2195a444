package realtime

import (
	"context"

	"localsearch-forecast/cache"
)

// DefaultRelayChannel is the Redis channel shared by all instances
const DefaultRelayChannel = "localsearch:events"

// AttachRelay routes broadcasts through Redis pub/sub. Messages received on the channel are
// delivered to local clients until ctx is cancelled. Must be called before Broadcast is used.
func (b *Broker) AttachRelay(ctx context.Context, redis *cache.RedisClient, channel string) error {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	sub := redis.Subscribe(ctx, channel)
	if sub == nil {
		return cache.ErrNotInitialized
	}
	// wait for the subscription to be confirmed before publishing through it
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	b.relay = redis
	b.relayChannel = channel
	b.logger.WithField("channel", channel).Info("✅ Realtime relay attached")

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.deliver([]byte(msg.Payload))
			}
		}
	}()
	return nil
}
