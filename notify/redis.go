package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// redisPublisher is the part of redis.UniversalClient the sink needs.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes reports on a Redis pub/sub channel.
type RedisSink struct {
	client  redisPublisher
	channel string
}

// NewRedisSink returns a sink publishing on channel through client.
func NewRedisSink(client redis.UniversalClient, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis:" + s.channel }

// Send implements Sink.
func (s *RedisSink) Send(ctx context.Context, payload []byte) error {
	return s.client.Publish(ctx, s.channel, payload).Err()
}
