package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// msgPublisher is the subset of *nats.Conn the publisher needs.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NatsPublisher publishes post events to NATS. The subject is the event type
// ("post.created", ...), optionally prefixed.
type NatsPublisher struct {
	conn   msgPublisher
	prefix string
	logger *slog.Logger
}

// NewNatsPublisher wraps an established connection. prefix may be empty.
func NewNatsPublisher(conn msgPublisher, prefix string, logger *slog.Logger) *NatsPublisher {
	return &NatsPublisher{conn: conn, prefix: prefix, logger: logger}
}

// ConnectNATS dials url with reconnect logging.
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("postboard"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// PublishPostEvent implements domain.EventPublisher. The trace context of ctx
// travels in the message headers.
func (p *NatsPublisher) PublishPostEvent(ctx context.Context, ev domain.PostEvent) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: p.subject(ev.Type),
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	p.logger.Debug("published post event", "subject", msg.Subject, "post_id", ev.Post.ID)
	return nil
}

func (p *NatsPublisher) subject(t domain.EventType) string {
	if p.prefix == "" {
		return string(t)
	}
	return p.prefix + "." + string(t)
}
