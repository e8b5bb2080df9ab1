package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YelzhanWeb/tableorders/internal/adapter/logger"
	"github.com/YelzhanWeb/tableorders/internal/config"
)

type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// Channel is the subset of *amqp.Channel the publisher and consumer use.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

var errConnectionClosed = errors.New("connection is closed")

// Broker owns one AMQP connection and redials it when the broker dropped it.
type Broker struct {
	url    string
	logger logger.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	closed bool
}

var _ Connection = (*Broker)(nil)

func Connect(cfg config.RabbitMQConfig, lgr logger.Logger) (*Broker, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return &Broker{url: cfg.URL(), logger: lgr, conn: conn}, nil
}

func (b *Broker) Channel() (Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errConnectionClosed
	}
	if b.conn.IsClosed() {
		conn, err := amqp.Dial(b.url)
		if err != nil {
			return nil, fmt.Errorf("failed to reconnect to RabbitMQ: %w", err)
		}
		b.conn = conn
		b.logger.Info("rabbitmq_reconnected", "Reconnected to RabbitMQ", "", nil)
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if !b.conn.IsClosed() {
		return b.conn.Close()
	}
	return nil
}
