package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/shotengai/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeFeatureEvents delivers every new feature change to handler. The
// consumer is ephemeral so each API instance sees every event.
func (s *Subscriber) SubscribeFeatureEvents(ctx context.Context, handler func(ctx context.Context, event domain.FeatureEvent) error) error {
	sub, err := s.js.Subscribe(SubjectPrefix+">", func(msg *nats.Msg) {
		event, err := decodeEvent(msg.Data)
		if err != nil {
			slog.Warn("dropping malformed feature event", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, event); err != nil {
			slog.Warn("feature event handler failed", "feature_id", event.FeatureID, "error", err)
		}
	},
		nats.DeliverNew(),
		nats.AckNone(),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

func decodeEvent(data []byte) (domain.FeatureEvent, error) {
	var event domain.FeatureEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.FeatureEvent{}, err
	}
	if event.FeatureID == "" || event.Type == "" {
		return domain.FeatureEvent{}, fmt.Errorf("incomplete event %q", data)
	}
	return event, nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
