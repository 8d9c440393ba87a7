package syncx

import (
	"context"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// publisher is the slice of *amqp.Channel the sink needs.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events to a topic exchange with routing key
// "attempt.<type>", e.g. attempt.submitted.
type AMQPSink struct {
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   publisher
}

// DialAMQP connects, opens a channel and declares the exchange.
func DialAMQP(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPSink{exchange: exchange, conn: conn, ch: ch}, nil
}

func newAMQPSink(exchange string, ch publisher) *AMQPSink {
	return &AMQPSink{exchange: exchange, ch: ch}
}

func (s *AMQPSink) Append(ctx context.Context, e Event) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.Key + ":" + e.Type,
		Type:         e.Type,
		AppId:        e.SiteID,
		Body:         []byte(e.DataJSON),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(e.Type), false, false, msg)
}

func (s *AMQPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// RoutingKey maps AttemptSubmitted -> attempt.submitted.
func RoutingKey(typ string) string {
	return "attempt." + strings.ToLower(strings.TrimPrefix(typ, "Attempt"))
}
