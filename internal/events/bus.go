package events

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Handler consumes one published domain event.
// Params: context and event value.
// Returns: handler error, isolated from the publisher.
type Handler func(ctx context.Context, event any) error

// Bus is the in-process fire-and-forget domain event fan-out.
// Params: handler lists keyed by event type name.
// Returns: publish mechanism whose subscriber failures never reach the
// publishing stage.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an empty event bus.
// Params: logger for subscriber failure reports.
// Returns: initialized bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger:   logger,
		handlers: make(map[string][]Handler),
	}
}

// TypeOf resolves the subscription key for an event value.
// Params: event value or pointer.
// Returns: dereferenced concrete type name.
func TypeOf(event any) string {
	if event == nil {
		return ""
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// Subscribe registers one handler for an event type.
// Params: event type name (see TypeOf) and handler.
// Returns: none.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// Publish delivers one event to every subscribed handler.
// Params: context and event value.
// Returns: none; handler errors and panics are logged and contained.
func (b *Bus) Publish(ctx context.Context, event any) {
	eventType := TypeOf(event)
	if eventType == "" {
		return
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.deliver(ctx, eventType, handler, event)
	}
}

// deliver runs one handler with panic containment and failure logging.
// Params: context, event type, handler, and event.
// Returns: none.
func (b *Bus) deliver(ctx context.Context, eventType string, handler Handler, event any) {
	defer func() {
		if cause := recover(); cause != nil && b.logger != nil {
			b.logger.Error("event subscriber panicked", "event_type", eventType, "panic", fmt.Sprintf("%v", cause))
		}
	}()
	if err := handler(ctx, event); err != nil && b.logger != nil {
		b.logger.Error("event subscriber failed", "event_type", eventType, "error", err.Error())
	}
}
