package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/campus-canteen/api/internal/logger"
	amqp "github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	// DefaultExchange is the durable topic exchange events are exported to.
	DefaultExchange = "canteen.orders"

	amqpQueueSize = 256
)

// Publisher is the part of *amqp.Channel the exporter needs.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// exportedEvent is the message body seen by downstream consumers.
type exportedEvent struct {
	Channel     string          `json:"channel"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"publishedAt"`
}

type queued struct {
	channel string
	event   Event
	at      time.Time
}

// AMQPExporter copies every event to a topic exchange, routed by event type.
// Publish only enqueues; Run does the network writes. A full queue drops.
type AMQPExporter struct {
	pub      Publisher
	exchange string
	queue    chan queued
	closer   func() error
}

func NewAMQPExporter(pub Publisher, exchange string) *AMQPExporter {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPExporter{
		pub:      pub,
		exchange: exchange,
		queue:    make(chan queued, amqpQueueSize),
	}
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string) (*AMQPExporter, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	e := NewAMQPExporter(ch, exchange)
	e.closer = func() error {
		chErr := ch.Close()
		connErr := conn.Close()
		if chErr != nil {
			return chErr
		}
		return connErr
	}
	return e, nil
}

func (e *AMQPExporter) Publish(channel string, event Event) {
	select {
	case e.queue <- queued{channel: channel, event: event, at: time.Now()}:
	default:
		logger.Log.Warn("amqp export queue full, dropping event",
			zap.String("channel", channel),
			zap.String("type", event.Type),
		)
	}
}

// Run drains the queue until ctx is done.
func (e *AMQPExporter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case q := <-e.queue:
			if err := e.send(q); err != nil {
				logger.Log.Error("amqp export failed",
					zap.String("channel", q.channel),
					zap.String("type", q.event.Type),
					zap.Error(err),
				)
			}
		}
	}
}

func (e *AMQPExporter) send(q queued) error {
	body, err := json.Marshal(exportedEvent{
		Channel:     q.channel,
		Type:        q.event.Type,
		Payload:     q.event.Payload,
		PublishedAt: q.at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return e.pub.Publish(
		e.exchange,
		q.event.Type,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    q.at,
			Type:         q.event.Type,
			Body:         body,
		},
	)
}

// Close releases the broker connection when the exporter was dialed.
func (e *AMQPExporter) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}
