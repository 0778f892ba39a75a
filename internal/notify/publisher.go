package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher delivers notification payloads over redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps the redis client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}
