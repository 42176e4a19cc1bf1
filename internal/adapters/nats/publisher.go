package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/bilbowatch/internal/core/domain"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS, enables JetStream, and ensures the
// streams both sides of the map pipeline rely on.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			// Marker changes from the reports service. The projector reads
			// them through a durable consumer, so retention is age-based.
			Name:     "REPORT_EVENTS",
			Subjects: []string{"reports.marker.>"},
			MaxAge:   24 * time.Hour,
			Storage:  nats.FileStorage,
		},
		{
			Name:      "MAP_INTERACTIONS",
			Subjects:  []string{"map.interaction.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishClusterExpansion(ctx context.Context, ev *domain.ClusterExpansion) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("map.interaction.cluster_expand."+ev.SessionID, data)
	return err
}

func (p *Publisher) PublishMarkerOpen(ctx context.Context, ev *domain.MarkerOpen) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("map.interaction.marker_open."+ev.SessionID, data)
	return err
}

// PublishMarkerEvent feeds a marker change into the stream the projector
// consumes. In production the reports service publishes these; the seed and
// simulator commands use it to stand in for that service.
func (p *Publisher) PublishMarkerEvent(ctx context.Context, ev *domain.MarkerEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish("reports.marker."+ev.Kind, data)
	return err
}

// Conn exposes the underlying connection for readiness checks.
func (p *Publisher) Conn() *nats.Conn { return p.conn }

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
