// Package nats is the NATS-backed pipeline bus. Messages are published to
// per-command-type subjects and delivered to a queue group of workers, with
// tracking headers carried in the NATS message header block.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/sagaflow/sagaflow/pkg/activity"
	"github.com/sagaflow/sagaflow/pkg/observability"
	"github.com/sagaflow/sagaflow/pkg/pipeline"
)

// Config holds configuration for the NATS pipeline bus.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// SubjectPrefix prefixes every command subject on the wire
	// (default "sagaflow.commands").
	SubjectPrefix string

	// QueueGroup is the worker queue group for load balancing
	// (default "sagaflow-workers").
	QueueGroup string
}

// DefaultConfig returns sensible defaults for the pipeline bus.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "sagaflow.commands",
		QueueGroup:    "sagaflow-workers",
	}
}

// Bus connects the pipeline to a NATS server. Every published message is
// recorded as sent before dispatch, so handler and saga events referencing
// it always find a known message.
type Bus struct {
	nc       *nats.Conn
	config   Config
	recorder *activity.Recorder
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithMetrics sets the metric instruments for bus traffic.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// NewBus connects to NATS and returns a pipeline bus recording through the
// given recorder.
func NewBus(config Config, recorder *activity.Recorder, opts ...Option) (*Bus, error) {
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = DefaultConfig().SubjectPrefix
	}
	if config.QueueGroup == "" {
		config.QueueGroup = DefaultConfig().QueueGroup
	}

	nc, err := nats.Connect(config.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b := &Bus{
		nc:       nc,
		config:   config,
		recorder: recorder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Publish records the message as sent and publishes it to its subject.
func (b *Bus) Publish(ctx context.Context, msg *pipeline.Message) error {
	if msg.ID.IsZero() {
		return fmt.Errorf("message has no id")
	}

	var commandID *activity.CommandID
	if id, ok := msg.Headers.CommandID(); ok {
		commandID = &id
	}
	if err := b.recorder.RecordMessageSent(ctx, msg.ID, commandID, msg.Headers.CorrelationID(), msg.Body); err != nil {
		return fmt.Errorf("record message sent: %w", err)
	}

	nm := nats.NewMsg(b.wireSubject(msg.Subject))
	nm.Data = msg.Body
	for k, v := range msg.Headers {
		nm.Header.Set(k, v)
	}

	if err := b.nc.PublishMsg(nm); err != nil {
		return fmt.Errorf("publish to %s: %w", nm.Subject, err)
	}
	if b.metrics != nil {
		b.metrics.AddBusMessages(ctx, msg.Subject, "publish", 1)
	}
	return nil
}

// SubscribeAll subscribes the dispatcher to every subject it has handlers
// or sagas for, within the worker queue group.
func (b *Bus) SubscribeAll(ctx context.Context, d *pipeline.Dispatcher) error {
	for _, subject := range d.Subjects() {
		if err := b.Subscribe(ctx, subject, d); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe delivers messages on the subject to the dispatcher.
func (b *Bus) Subscribe(ctx context.Context, subject string, d *pipeline.Dispatcher) error {
	sub, err := b.nc.QueueSubscribe(b.wireSubject(subject), b.config.QueueGroup, func(nm *nats.Msg) {
		msg := b.decode(subject, nm)
		if msg == nil {
			return
		}
		if b.metrics != nil {
			b.metrics.AddBusMessages(ctx, subject, "receive", 1)
		}
		if err := d.Dispatch(ctx, msg); err != nil {
			// Processing failures are already recorded in activity tracking;
			// the bus only logs them.
			b.logger.ErrorContext(ctx, "message processing failed",
				slog.String("subject", subject),
				slog.String("message_id", msg.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// Flush waits for published messages to reach the server. Useful in tests.
func (b *Bus) Flush() error {
	return b.nc.Flush()
}

// Close drains all subscriptions and closes the connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Error("unsubscribe failed", slog.String("error", err.Error()))
		}
	}
	b.nc.Close()
	return nil
}

func (b *Bus) wireSubject(subject string) string {
	return fmt.Sprintf("%s.%s", b.config.SubjectPrefix, subject)
}

func (b *Bus) decode(subject string, nm *nats.Msg) *pipeline.Message {
	headers := pipeline.Headers{}
	for k := range nm.Header {
		headers[k] = nm.Header.Get(k)
	}

	id, ok := headers.MessageID()
	if !ok {
		b.logger.Warn("dropping message without id header",
			slog.String("subject", subject))
		return nil
	}

	return &pipeline.Message{
		ID:      id,
		Subject: subject,
		Headers: headers,
		Body:    nm.Data,
	}
}
