// Copyright 2026 The Keygate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisStream is the stream envelopes are appended to when no
// override is configured.
const DefaultRedisStream = "keygate_events"

const redisHealthTimeout = 500 * time.Millisecond

// RedisStreamPlugin appends envelopes to a Redis Stream via XADD. Consumers
// read the stream with XREAD/consumer groups; the payload field carries the
// full envelope JSON, the flat fields support filtering without decoding.
type RedisStreamPlugin struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPlugin dials the Redis URL and verifies the connection.
// maxLen 0 leaves stream trimming to the server's memory policy.
func NewRedisStreamPlugin(ctx context.Context, url, stream string, maxLen int64) (*RedisStreamPlugin, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if stream == "" {
		stream = DefaultRedisStream
	}
	return &RedisStreamPlugin{client: client, stream: stream, maxLen: maxLen}, nil
}

// NewRedisStreamPluginFromClient wraps an existing client. Used by tests.
func NewRedisStreamPluginFromClient(client *redis.Client, stream string, maxLen int64) *RedisStreamPlugin {
	if stream == "" {
		stream = DefaultRedisStream
	}
	return &RedisStreamPlugin{client: client, stream: stream, maxLen: maxLen}
}

// Emit appends the envelope to the stream.
func (p *RedisStreamPlugin) Emit(ctx context.Context, envelope *Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"idempotency_key": envelope.EffectiveIdempotencyKey(),
			"event_type":      string(envelope.Event.Type),
			"event_id":        envelope.Event.ID,
			"correlation_id":  envelope.CorrelationID,
			"producer":        envelope.Producer,
			"payload":         payload,
		},
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to XADD envelope: %w", err)
	}
	return nil
}

// Name identifies the plugin.
func (p *RedisStreamPlugin) Name() string { return "redis_streams" }

// Health pings the server with a short deadline.
func (p *RedisStreamPlugin) Health(ctx context.Context) bool {
	hctx, cancel := context.WithTimeout(ctx, redisHealthTimeout)
	defer cancel()
	return p.client.Ping(hctx).Err() == nil
}

// Close releases the connection pool.
func (p *RedisStreamPlugin) Close() error {
	return p.client.Close()
}
