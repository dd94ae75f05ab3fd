package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cimillas/ticket-ledger/internal/ledger"
)

// Channel is the part of *amqp.Channel the publisher and consumer use.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Publisher publishes receipts as persistent JSON messages on the default
// exchange, routed to one durable queue.
type Publisher struct {
	mu    sync.Mutex
	ch    Channel
	queue string
	now   func() time.Time
}

// NewPublisher declares queue on ch. An empty queue name selects DefaultQueue.
func NewPublisher(ch Channel, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if err := declare(ch, queue); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch, queue: queue, now: time.Now}, nil
}

// SaveReceipt publishes one receipt.
func (p *Publisher) SaveReceipt(ctx context.Context, receipt ledger.Receipt) error {
	body, err := json.Marshal(NewReceiptMessage(receipt))
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    receipt.ID.String(),
		Type:         receipt.Method,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish receipt %d: %w", receipt.Seq, err)
	}
	return nil
}

// Connection owns a broker connection and the channel opened on it.
type Connection struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to the broker at url and opens a channel.
func Dial(url string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &Connection{conn: conn, ch: ch}, nil
}

func (c *Connection) Channel() *amqp.Channel { return c.ch }

func (c *Connection) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

func declare(ch Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}
