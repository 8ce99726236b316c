package pubsub

import (
	"context"
	"fmt"
	"strings"

	"alarming/internal/config"

	"github.com/nats-io/nats.go"
)

// NATSPubSub broadcasts invalidation messages over core NATS subjects.
// Params: shared NATS connection for publish and subscriptions.
// Returns: cluster-wide pubsub implementation.
type NATSPubSub struct {
	nc *nats.Conn
}

// NewNATSPubSub connects to NATS for broadcast traffic.
// Params: NATS settings from config.
// Returns: initialized pubsub or connect error.
func NewNATSPubSub(settings config.NATSConfig) (*NATSPubSub, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats pubsub: %w", err)
	}
	return &NATSPubSub{nc: nc}, nil
}

// Publish broadcasts one payload on a subject.
// Params: context, subject topic, and payload.
// Returns: publish error.
func (p *NATSPubSub) Publish(_ context.Context, topic string, payload []byte) error {
	if err := p.nc.Publish(topic, payload); err != nil {
		return fmt.Errorf("publish %q: %w", topic, err)
	}
	return nil
}

// Subscribe registers one handler for a subject.
// Params: subject topic and handler.
// Returns: unsubscribe callback or subscribe error.
func (p *NATSPubSub) Subscribe(topic string, handler Handler) (func(), error) {
	sub, err := p.nc.Subscribe(topic, func(msg *nats.Msg) {
		if msg == nil {
			return
		}
		invoke(handler, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %q: %w", topic, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close closes the NATS connection.
// Params: none.
// Returns: nil after connection close.
func (p *NATSPubSub) Close() error {
	p.nc.Close()
	return nil
}
