// Package sagaflow wires the activity tracking pieces into one module: a
// command registry, the activity recorder, the bounded status store, and
// the notification broadcaster, with a single entry point for submitting
// commands onto the bus.
package sagaflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sagaflow/sagaflow/pkg/activity"
	"github.com/sagaflow/sagaflow/pkg/notify"
	"github.com/sagaflow/sagaflow/pkg/observability"
	"github.com/sagaflow/sagaflow/pkg/pipeline"
	"github.com/sagaflow/sagaflow/pkg/schema"
	"github.com/sagaflow/sagaflow/pkg/status"
)

// Publisher puts a message on the bus. The NATS bus implements it; tests
// substitute an in-process fake.
type Publisher interface {
	Publish(ctx context.Context, msg *pipeline.Message) error
}

// Module owns the tracking state for one application.
type Module struct {
	registry    *schema.Registry
	store       *activity.Store
	statuses    *status.Store
	broadcaster *notify.Broadcaster
	recorder    *activity.Recorder
	publisher   Publisher
	logger      *slog.Logger
	now         func() time.Time
}

// ModuleOption configures a Module.
type ModuleOption func(*moduleConfig)

type moduleConfig struct {
	logger         *slog.Logger
	metrics        *observability.Metrics
	statusCapacity int
	now            func() time.Time
}

// WithLogger sets the logger used by the module and its components.
func WithLogger(logger *slog.Logger) ModuleOption {
	return func(c *moduleConfig) { c.logger = logger }
}

// WithMetrics wires meter-backed instrumentation through the module.
func WithMetrics(m *observability.Metrics) ModuleOption {
	return func(c *moduleConfig) { c.metrics = m }
}

// WithStatusCapacity bounds the number of command statuses kept in memory.
func WithStatusCapacity(capacity int) ModuleOption {
	return func(c *moduleConfig) { c.statusCapacity = capacity }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ModuleOption {
	return func(c *moduleConfig) { c.now = now }
}

// New creates a module around the given command registry.
func New(registry *schema.Registry, opts ...ModuleOption) *Module {
	cfg := moduleConfig{
		logger:         slog.Default(),
		statusCapacity: status.DefaultCapacity,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	statusOpts := []status.StoreOption{status.WithCapacity(cfg.statusCapacity)}
	if cfg.metrics != nil {
		m := cfg.metrics
		statusOpts = append(statusOpts, status.WithEvictionObserver(func(n int) {
			m.AddEvictions(context.Background(), n)
		}))
	}

	statuses := status.NewStore(statusOpts...)
	broadcaster := notify.NewBroadcaster(cfg.logger)
	store := activity.NewStore()

	recorderOpts := []activity.RecorderOption{
		activity.WithStatusSink(statuses),
		activity.WithNotifier(broadcaster),
		activity.WithLogger(cfg.logger),
		activity.WithClock(cfg.now),
	}
	if cfg.metrics != nil {
		recorderOpts = append(recorderOpts, activity.WithMetrics(cfg.metrics))
	}

	return &Module{
		registry:    registry,
		store:       store,
		statuses:    statuses,
		broadcaster: broadcaster,
		recorder:    activity.NewRecorder(store, registry, recorderOpts...),
		logger:      cfg.logger,
		now:         cfg.now,
	}
}

// SetPublisher attaches the bus. The bus itself needs the module's recorder
// to construct, so it is attached after New rather than passed to it.
func (m *Module) SetPublisher(p Publisher) { m.publisher = p }

// Registry returns the command registry.
func (m *Module) Registry() *schema.Registry { return m.registry }

// Recorder returns the activity recorder driving this module.
func (m *Module) Recorder() *activity.Recorder { return m.recorder }

// Statuses returns the bounded status store.
func (m *Module) Statuses() *status.Store { return m.statuses }

// Broadcaster returns the status notification broadcaster.
func (m *Module) Broadcaster() *notify.Broadcaster { return m.broadcaster }

// Submit records a new command and publishes it on the bus. The returned
// CommandID identifies the command in every later status query. Without an
// attached publisher the command is tracked but goes nowhere, which is how
// tests exercise the tracking path in isolation.
func (m *Module) Submit(ctx context.Context, commandType string, body any, initiatingUser string) (activity.CommandID, error) {
	id := activity.NewCommandID()
	start := m.now()

	if err := m.recorder.RecordCommandInitiated(ctx, id, commandType, body, initiatingUser); err != nil {
		return activity.CommandID{}, err
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return activity.CommandID{}, fmt.Errorf("encode command %s body: %w", commandType, err)
		}
		payload = data
	}

	def, _ := m.registry.Lookup(commandType)
	commandName := commandType
	if def != nil {
		commandName = def.Name
	}

	msg := pipeline.NewMessage(commandType, payload)
	msg.Headers.StampCommand(id, commandName, initiatingUser, start)
	msg.Headers[pipeline.HeaderCorrelationID] = pipeline.NewCorrelationID()

	if m.publisher == nil {
		m.logger.Debug("no publisher attached, command tracked only",
			slog.String("command_id", id.String()))
		if err := m.recorder.RecordMessageSent(ctx, msg.ID, &id, msg.Headers.CorrelationID(), body); err != nil {
			return activity.CommandID{}, err
		}
		return id, nil
	}

	if err := m.publisher.Publish(ctx, msg); err != nil {
		return activity.CommandID{}, fmt.Errorf("publish command %s: %w", commandType, err)
	}

	return id, nil
}

// GetCommand returns the latest projected status of one command.
func (m *Module) GetCommand(id activity.CommandID) (*activity.CommandStatus, bool) {
	return m.statuses.Get(id)
}

// GetCommands pages through tracked commands, newest first, optionally
// filtered by a case-insensitive keyword.
func (m *Module) GetCommands(pageIndex, pageSize int, keyword string) status.PagedResult[*activity.CommandStatus] {
	return m.statuses.GetCommands(pageIndex, pageSize, keyword)
}

// CommandHistory pages through past submissions of one command type,
// newest first.
func (m *Module) CommandHistory(commandType string, pageIndex, pageSize int) ([]*activity.CommandStatus, int) {
	return m.store.CommandHistory(commandType, pageIndex, pageSize)
}
