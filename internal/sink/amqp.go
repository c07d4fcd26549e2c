package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gojue/ecaptureQ/internal/packet"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSink publishes each batch to a topic exchange with the topic as the
// routing key.
type AMQPSink struct {
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialAMQP connects to a broker and declares exchange as a topic exchange.
func DialAMQP(url, exchange string) (*AMQPSink, error) {
	if exchange == "" {
		exchange = "ecaptureq"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("sink: amqp connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sink: amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("sink: declare exchange %s: %w", exchange, err)
	}
	return &AMQPSink{exchange: exchange, conn: conn, ch: ch}, nil
}

func (s *AMQPSink) Emit(ctx context.Context, topic string, rows []packet.Record) error {
	b, err := Encode(topic, rows, time.Now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil || s.ch.IsClosed() {
		return errors.New("sink: amqp channel closed")
	}
	return s.ch.PublishWithContext(ctx, s.exchange, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        b,
	})
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
		s.ch = nil
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	return errors.Join(errs...)
}
