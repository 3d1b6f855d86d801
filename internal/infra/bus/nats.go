package bus

import (
	"context"
	"fmt"
	"time"

	"reminder_engine/internal/domain/reminder"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Name          string
	JetStream     bool
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "reminder-engine",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

type coreConn interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

type jetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSPublisher publishes events on a subject. With JetStream enabled the publish waits for the
// stream's ack and the Nats-Msg-Id header lets the stream drop duplicates.
type NATSPublisher struct {
	core   coreConn
	js     jetStream
	conn   *nats.Conn
	logger logrus.FieldLogger
}

func NewNATSPublisher(cfg NATSConfig, logger logrus.FieldLogger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := &NATSPublisher{core: nc, conn: nc, logger: logger}
	if cfg.JetStream {
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to open JetStream context: %w", err)
		}
		p.js = js
	}

	logger.WithFields(logrus.Fields{
		"url":       nc.ConnectedUrl(),
		"jetstream": cfg.JetStream,
	}).Info("NATS publisher connected")
	return p, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event reminder.Event) error {
	data, err := encode(event)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, MessageID(event))

	if p.js != nil {
		ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("jetstream publish to %s: %w", topic, err)
		}
		if ack != nil && ack.Duplicate {
			p.logger.WithField("tick", event.TickTimestampUTC).Info("JetStream dropped duplicate reminder batch")
		}
		return nil
	}

	if err := p.core.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish to %s: %w", topic, err)
	}
	if err := p.core.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
