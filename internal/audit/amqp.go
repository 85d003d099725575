package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue audit entries are published to.
const DefaultQueue = "intake.audit"

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes entries as persistent JSON messages on a durable
// RabbitMQ queue. A broken channel is re-dialed on the next Emit.
type AMQPPublisher struct {
	mu     sync.Mutex
	queue  string
	dial   func() (amqpChannel, func() error, error)
	ch     amqpChannel
	close  func() error
	logger *slog.Logger
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url, queue string, logger *slog.Logger) (*AMQPPublisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	p := &AMQPPublisher{
		queue:  queue,
		logger: logger.With("component", "amqp"),
		dial: func() (amqpChannel, func() error, error) {
			conn, err := amqp.Dial(url)
			if err != nil {
				return nil, nil, fmt.Errorf("dial broker: %w", err)
			}
			ch, err := conn.Channel()
			if err != nil {
				conn.Close()
				return nil, nil, fmt.Errorf("open channel: %w", err)
			}
			return ch, conn.Close, nil
		},
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	ch, closeConn, err := p.dial()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		if closeConn != nil {
			closeConn()
		}
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}
	p.ch, p.close = ch, closeConn
	return nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.close != nil {
		p.close()
	}
	p.ch, p.close = nil, nil
}

func (p *AMQPPublisher) Emit(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID.String(),
		Type:         string(e.Action),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.logger.Warn("publish failed, resetting channel", "event_id", e.ID, "error", err)
		p.reset()
		return fmt.Errorf("publish audit entry: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
