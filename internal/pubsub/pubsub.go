package pubsub

import (
	"context"
	"sync"
)

// Handler consumes one broadcast payload.
// Params: raw message payload.
// Returns: none (broadcast consumers are fire-and-forget).
type Handler func(payload []byte)

// PubSub broadcasts config-change notifications to every node.
// Params: topic-scoped publish and subscribe operations.
// Returns: eventually consistent invalidation fan-out; brief staleness
// after a config change is acceptable.
type PubSub interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, handler Handler) (func(), error)
	Close() error
}

// MemoryPubSub delivers broadcasts in-process for single-instance mode.
// Params: handler lists keyed by topic.
// Returns: pubsub implementation without external dependencies.
type MemoryPubSub struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

// NewMemoryPubSub creates an in-process pubsub.
// Params: none.
// Returns: initialized pubsub.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{handlers: make(map[string]map[int]Handler)}
}

// Publish invokes every subscribed handler for the topic.
// Params: context, topic, and payload.
// Returns: nil; handler panics are contained per subscriber.
func (p *MemoryPubSub) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.RLock()
	handlers := make([]Handler, 0, len(p.handlers[topic]))
	for _, handler := range p.handlers[topic] {
		handlers = append(handlers, handler)
	}
	p.mu.RUnlock()

	for _, handler := range handlers {
		invoke(handler, payload)
	}
	return nil
}

// invoke runs one handler with panic containment.
// Params: handler and payload.
// Returns: none.
func invoke(handler Handler, payload []byte) {
	defer func() { _ = recover() }()
	handler(payload)
}

// Subscribe registers one handler for a topic.
// Params: topic and handler.
// Returns: unsubscribe callback.
func (p *MemoryPubSub) Subscribe(topic string, handler Handler) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handlers[topic] == nil {
		p.handlers[topic] = make(map[int]Handler)
	}
	id := p.nextID
	p.nextID++
	p.handlers[topic][id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers[topic], id)
	}, nil
}

// Close releases pubsub resources.
// Params: none.
// Returns: nil.
func (p *MemoryPubSub) Close() error {
	return nil
}
