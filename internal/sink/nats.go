package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/igefined/generic-trader/internal/config"
	"github.com/igefined/generic-trader/internal/domain"
)

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards the raw content of every message to
// <subject>.<feed>.
type NATSPublisher struct {
	conn    Publisher
	subject string
	logger  *zap.Logger
}

func NewNATSPublisher(conn Publisher, subject, feedID string, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:    conn,
		subject: subject + "." + strings.ToUpper(feedID),
		logger:  logger.Named("nats-sink"),
	}
}

func (p *NATSPublisher) Subject() string {
	return p.subject
}

func (p *NATSPublisher) Handle(_ context.Context, msg domain.StreamMessage) error {
	if err := p.conn.Publish(p.subject, msg.Content); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.logger.Debug("Published stream message",
		zap.String("subject", p.subject),
		zap.String("service", msg.Service),
		zap.Int("bytes", len(msg.Content)))
	return nil
}

// Connect dials NATS and keeps reconnecting in the background for the
// lifetime of the connection.
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	logger = logger.Named("nats")
	conn, err := nats.Connect(cfg.URL,
		nats.Name("generic-trader"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	return conn, nil
}
