package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const invalidateChannel = "readmodel.invalidate"

// ReadModel is a versioned Redis cache for list and detail projections.
// Every scope (a logical key such as "requests" or "audits") carries a
// version counter; invalidation bumps the counter so all keys built under
// the old version fall out of use, and announces the bump on pub/sub so
// other processes can refresh.
type ReadModel struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReadModel instantiates the cache helper. A nil client degrades to a
// pass-through (loaders always run), which the tests and the worker use.
func NewReadModel(client *redis.Client, ttl time.Duration) *ReadModel {
	return &ReadModel{client: client, ttl: ttl}
}

func versionKey(scope string) string {
	return "readmodel:" + scope + ":version"
}

// Version returns the current version of a scope, initialising when missing.
func (c *ReadModel) Version(ctx context.Context, scope string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(scope)).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, versionKey(scope), 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes a cache key under the scope's current version.
func (c *ReadModel) BuildKey(ctx context.Context, scope string, parts ...string) (string, error) {
	joined := scope + ":" + strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, scope)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *ReadModel) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate bumps the version of each scope and publishes the bump.
// Services call it after every successful transition with the entity's
// containing list scope.
func (c *ReadModel) Invalidate(ctx context.Context, scopes ...string) error {
	if c == nil || c.client == nil {
		return nil
	}
	for _, scope := range scopes {
		if scope == "" {
			continue
		}
		ver, err := c.client.Incr(ctx, versionKey(scope)).Result()
		if err != nil {
			return err
		}
		if err := c.client.Publish(ctx, invalidateChannel, fmt.Sprintf("%s:%d", scope, ver)).Err(); err != nil {
			return err
		}
	}
	return nil
}

// ListenForInvalidation subscribes to bump notifications until ctx ends.
func (c *ReadModel) ListenForInvalidation(ctx context.Context, fn func(scope string)) error {
	if c == nil || c.client == nil {
		return nil
	}
	sub := c.client.Subscribe(ctx, invalidateChannel)
	defer func() { _ = sub.Close() }()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if fn != nil {
				scope := msg.Payload
				if idx := strings.LastIndex(scope, ":"); idx > 0 {
					scope = scope[:idx]
				}
				fn(scope)
			}
		}
	}
}
