// Package telemetry publishes simulation snapshots to a Redis stream so
// external consumers (dashboards, recorders) can follow a tankd instance
// without holding a WebSocket open.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tanksim/tankd/internal/history"
)

// DefaultStream is the stream name used when none is configured.
const DefaultStream = "telemetry:tank"

// RedisPublisher appends snapshots to a capped Redis stream via XADD.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher connects to addr and verifies the connection. The
// stream is trimmed to approximately maxLen entries on each append; a
// non-positive maxLen keeps 10000.
func NewRedisPublisher(ctx context.Context, addr, stream string, maxLen int64) (*RedisPublisher, error) {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = 10000
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("telemetry: connect to redis at %s: %w", addr, err)
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}, nil
}

// Publish appends one snapshot as a JSON field on the stream.
func (p *RedisPublisher) Publish(ctx context.Context, snap history.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("telemetry: marshal snapshot: %w", err)
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{"snapshot": string(data)},
	}).Err()
}

// Stream returns the stream this publisher appends to.
func (p *RedisPublisher) Stream() string {
	return p.stream
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
