package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultNATSSubject is the subject envelopes are published on when no
// override is configured.
const DefaultNATSSubject = "keygate.events"

// NATSPlugin publishes envelopes as core NATS messages. Delivery is
// at-most-once; subscribers that need replay should bridge the subject into
// JetStream on their side.
type NATSPlugin struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPlugin connects to the NATS URL.
func NewNATSPlugin(url, subject string) (*NATSPlugin, error) {
	if subject == "" {
		subject = DefaultNATSSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("keygate"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSPlugin{conn: conn, subject: subject}, nil
}

// Emit publishes the envelope on the configured subject.
func (p *NATSPlugin) Emit(_ context.Context, envelope *Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("failed to publish envelope: %w", err)
	}
	return nil
}

// Name identifies the plugin.
func (p *NATSPlugin) Name() string { return "nats" }

// Health reports whether the connection is up.
func (p *NATSPlugin) Health(context.Context) bool {
	return p.conn.IsConnected()
}

// Close drains pending publishes and closes the connection.
func (p *NATSPlugin) Close() error {
	return p.conn.Drain()
}
