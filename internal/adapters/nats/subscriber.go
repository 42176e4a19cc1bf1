package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
	"github.com/samirrijal/bilbowatch/internal/pkg/metrics"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection. A dropped
// connection here means markers quietly stop updating, so connection state
// changes are logged rather than swallowed.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeMarkerEvents consumes marker changes through a durable consumer
// bound to the REPORT_EVENTS stream. A handler error naks the message for
// redelivery, up to three deliveries.
func (s *Subscriber) SubscribeMarkerEvents(ctx context.Context, handler func(ctx context.Context, ev *domain.MarkerEvent) error) error {
	sub, err := s.js.Subscribe("reports.marker.>", func(msg *nats.Msg) {
		var ev domain.MarkerEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			_ = msg.Nak()
			return
		}
		if err := handler(ctx, &ev); err != nil {
			_ = msg.Nak()
			return
		}
		metrics.MarkerEventsApplied.WithLabelValues(ev.Kind).Inc()
		_ = msg.Ack()
	},
		nats.Durable("bilbowatch-projector"),
		nats.BindStream("REPORT_EVENTS"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
