package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/gojue/ecaptureQ/internal/packet"
	logpkg "github.com/gojue/ecaptureQ/pkg/log"
	"github.com/nats-io/nats.go"
)

// NATSSink publishes each batch to <prefix>.<topic>.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

// DialNATS connects to a NATS server. Batches go to <prefix>.<topic>.
func DialNATS(url, prefix string, logger logpkg.Logger) (*NATSSink, error) {
	if prefix == "" {
		prefix = "ecaptureq"
	}
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
	logger = logger.With(logpkg.Component("sink"), logpkg.Str("sink", "nats"))
	conn, err := nats.Connect(url,
		nats.Name("ecaptureq"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", logpkg.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", logpkg.Str("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("sink: nats connect %s: %w", url, err)
	}
	return &NATSSink{conn: conn, prefix: prefix}, nil
}

// Subject returns the subject a topic is published on.
func (s *NATSSink) Subject(topic string) string { return s.prefix + "." + topic }

func (s *NATSSink) Emit(_ context.Context, topic string, rows []packet.Record) error {
	b, err := Encode(topic, rows, time.Now())
	if err != nil {
		return err
	}
	return s.conn.Publish(s.Subject(topic), b)
}

func (s *NATSSink) Close() error {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}
