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

	"github.com/segmentio/kafka-go"
)

// DefaultKafkaTopic is the topic envelopes are produced to when no override
// is configured.
const DefaultKafkaTopic = "keygate_events"

// KafkaPlugin produces envelopes to a Kafka topic. The message key is the
// effective idempotency key, so retries of the same logical event land on
// the same partition and log-compacted topics keep one copy.
type KafkaPlugin struct {
	writer *kafka.Writer
}

// NewKafkaPlugin creates a producer against the broker list. An empty
// clientID leaves broker-side client identification to the transport
// default.
func NewKafkaPlugin(brokers []string, topic, clientID string) *KafkaPlugin {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return &KafkaPlugin{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           100 * time.Millisecond,
			AllowAutoTopicCreation: true,
			Transport:              &kafka.Transport{ClientID: clientID},
		},
	}
}

// Emit produces the envelope keyed by its effective idempotency key.
func (p *KafkaPlugin) Emit(ctx context.Context, envelope *Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(envelope.EffectiveIdempotencyKey()),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to produce envelope: %w", err)
	}
	return nil
}

// Name identifies the plugin.
func (p *KafkaPlugin) Name() string { return "kafka" }

// Health reports true; broker reachability surfaces on the next Emit.
func (p *KafkaPlugin) Health(context.Context) bool { return true }

// Close flushes and releases the producer.
func (p *KafkaPlugin) Close() error {
	return p.writer.Close()
}
