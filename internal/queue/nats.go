package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"alarming/internal/config"
	"alarming/internal/domain"

	"github.com/nats-io/nats.go"
)

const queueStreamMaxAge = 24 * time.Hour

// NATSQueue is a JetStream work-queue stream with a durable pull consumer.
// Params: NATS connection, JetStream context, and pull subscription.
// Returns: cluster FIFO; every node shares the durable consumer so each
// event is delivered to exactly one poller.
type NATSQueue struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	subject string
}

// NewNATSQueue connects, ensures the stream, and binds the pull consumer.
// Params: NATS settings from config.
// Returns: initialized queue or setup error.
func NewNATSQueue(settings config.NATSConfig) (*NATSQueue, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats queue: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for queue: %w", err)
	}
	if err := ensureStream(js, settings.QueueStream, settings.QueueSubject); err != nil {
		nc.Close()
		return nil, err
	}

	sub, err := js.PullSubscribe(
		settings.QueueSubject,
		settings.QueueConsumer,
		nats.BindStream(settings.QueueStream),
		nats.ManualAck(),
		nats.AckExplicit(),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("pull subscribe %q/%q: %w", settings.QueueSubject, settings.QueueConsumer, err)
	}

	return &NATSQueue{nc: nc, js: js, sub: sub, subject: settings.QueueSubject}, nil
}

// ensureStream ensures the work-queue stream exists.
// Params: JetStream context, stream name, and subject.
// Returns: stream create/lookup error.
func ensureStream(js nats.JetStreamContext, streamName, subject string) error {
	if _, err := js.StreamInfo(streamName); err == nil {
		return nil
	} else if err != nats.ErrStreamNotFound && !strings.Contains(strings.ToLower(err.Error()), "stream not found") {
		return fmt.Errorf("stream info %q: %w", streamName, err)
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
		MaxAge:    queueStreamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", streamName, err)
	}
	return nil
}

// Publish appends one event to the stream.
// Params: context and event.
// Returns: encode or publish error.
func (q *NATSQueue) Publish(ctx context.Context, event domain.AlertEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode alert event: %w", err)
	}
	msg := nats.NewMsg(q.subject)
	msg.Data = body
	if _, err := q.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish alert event: %w", err)
	}
	return nil
}

// Poll fetches at most one event, waiting up to the bounded timeout.
// Params: context and poll timeout.
// Returns: event pointer or (nil, nil) when the fetch window elapses empty.
// Undecodable messages are acked away and reported as an error.
func (q *NATSQueue) Poll(ctx context.Context, timeout time.Duration) (*domain.AlertEvent, error) {
	msgs, err := q.sub.Fetch(1, nats.MaxWait(timeout))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fetch alert event: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	msg := msgs[0]
	event, err := domain.DecodeAlertEvent(msg.Data)
	if err != nil {
		_ = msg.Ack()
		return nil, fmt.Errorf("poisoned queue message dropped: %w", err)
	}
	if err := msg.Ack(); err != nil {
		return nil, fmt.Errorf("ack alert event: %w", err)
	}
	return &event, nil
}

// Close drains the pull subscription and closes the connection.
// Params: none.
// Returns: close error from subscription drain.
func (q *NATSQueue) Close() error {
	if q.sub != nil {
		if err := q.sub.Drain(); err != nil {
			q.nc.Close()
			return err
		}
	}
	q.nc.Close()
	return nil
}
