package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/streadway/amqp"
)

// AMQPPublisher is the subset of *amqp.Channel the notifier needs
type AMQPPublisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes to a topic exchange with routing key
// "<severity>.<kind>", so consumers can bind on either part.
type AMQPNotifier struct {
	mu       sync.Mutex
	ch       AMQPPublisher
	conn     *amqp.Connection
	exchange string
}

// NewAMQPNotifier wraps an open channel
func NewAMQPNotifier(ch AMQPPublisher, exchange string) *AMQPNotifier {
	return &AMQPNotifier{ch: ch, exchange: exchange}
}

// DialAMQPNotifier connects, opens a channel and declares the exchange
func DialAMQPNotifier(url, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	n := NewAMQPNotifier(ch, exchange)
	n.conn = conn
	return n, nil
}

// RoutingKey builds the topic routing key for a message
func RoutingKey(msg Message) string {
	severity := string(msg.Severity)
	if severity == "" {
		severity = string(SeverityInfo)
	}
	return severity + "." + strings.ToLower(msg.Kind)
}

// Notify publishes a persistent JSON message. amqp.Channel is not safe for
// concurrent publishes, hence the mutex.
func (n *AMQPNotifier) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	err := n.ch.Publish(n.exchange, RoutingKey(msg), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    msg.ID,
		Timestamp:    msg.OccurredAt,
		Type:         msg.Kind,
		Headers: amqp.Table{
			"subject":   msg.Subject,
			"tenant_id": msg.TenantID,
		},
		Body: msg.Body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", msg.Kind, err)
	}
	return nil
}

// Close closes the channel and, when dialed here, the connection
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	err := n.ch.Close()
	if n.conn != nil {
		if cerr := n.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var _ Notifier = (*AMQPNotifier)(nil)
