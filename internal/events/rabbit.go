package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Defaults for the AMQP backend.
const (
	DefaultRabbitExchange   = "keygate.events"
	DefaultRabbitRoutingKey = "auth"
)

// RabbitPlugin publishes envelopes to a durable topic exchange.
type RabbitPlugin struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewRabbitPlugin dials the AMQP URL and declares the exchange.
func NewRabbitPlugin(url, exchange, routingKey string) (*RabbitPlugin, error) {
	if exchange == "" {
		exchange = DefaultRabbitExchange
	}
	if routingKey == "" {
		routingKey = DefaultRabbitRoutingKey
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	return &RabbitPlugin{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

// Emit publishes the envelope with its event and correlation IDs on the
// message properties.
func (p *RabbitPlugin) Emit(ctx context.Context, envelope *Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		MessageId:     envelope.Event.ID,
		CorrelationId: envelope.CorrelationID,
		Timestamp:     envelope.ProducedAt,
		Body:          payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish envelope: %w", err)
	}
	return nil
}

// Name identifies the plugin.
func (p *RabbitPlugin) Name() string { return "rabbit" }

// Health reports whether the connection is still open.
func (p *RabbitPlugin) Health(context.Context) bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close tears down the channel and connection.
func (p *RabbitPlugin) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
