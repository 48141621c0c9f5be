package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/asaskevich/govalidator"

	"github.com/sagaflow/sagaflow/pkg/observability"
	"github.com/sagaflow/sagaflow/pkg/schema"
)

// Recorder is the append-only ingestion API for pipeline lifecycle events.
// Every operation is a short synchronisation point: state is mutated under
// the store's and entities' locks, then the refreshed projection is pushed
// to the status sink and notifier outside any lock.
//
// Errors are synchronous and local to the call; a failed record call never
// corrupts sibling state. The recorder does not retry.
type Recorder struct {
	store    *Store
	registry *schema.Registry
	sink     StatusSink
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithStatusSink sets the bounded status history store fed after each
// mutation.
func WithStatusSink(sink StatusSink) RecorderOption {
	return func(r *Recorder) { r.sink = sink }
}

// WithNotifier sets the subscriber notification broadcaster.
func WithNotifier(n Notifier) RecorderOption {
	return func(r *Recorder) { r.notifier = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// WithMetrics sets the metric instruments recorded per operation.
func WithMetrics(m *observability.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder over the given live store and command
// registry.
func NewRecorder(store *Store, registry *schema.Registry, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:    store,
		registry: registry,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the live state store the recorder mutates.
func (r *Recorder) Store() *Store { return r.store }

// RecordCommandInitiated creates the tracking state for a newly dispatched
// command. Exactly-once per command ID: a second call for the same ID
// returns ErrDuplicateCommand and leaves the first command untouched.
func (r *Recorder) RecordCommandInitiated(ctx context.Context, id CommandID, commandType string, body any, initiatingUser string) error {
	def, ok := r.registry.Lookup(commandType)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommandType, commandType)
	}

	props := schema.DisplayProperties(def, body)
	cs := &CommandState{
		id:             id,
		commandType:    def.ID,
		commandName:    def.Name,
		summary:        schema.ResolveSummary(def, props),
		body:           body,
		initiatingUser: initiatingUser,
		startTime:      r.now(),
		properties:     props,
		attempt:        1,
		sagaStates:     make(map[SagaID]*SagaState),
	}

	if !r.store.addCommand(cs) {
		r.observe(ctx, "command_initiated", ErrDuplicateCommand)
		return &DuplicateCommandError{CommandID: id}
	}

	r.logger.DebugContext(ctx, "command initiated",
		slog.String("command_id", id.String()),
		slog.String("command_type", def.ID),
		slog.String("initiating_user", initiatingUser),
	)
	r.publish(ctx, cs, false)
	r.observe(ctx, "command_initiated", nil)
	return nil
}

// RecordMessageSent records a message observed sent by the pipeline before
// dispatch. Idempotent: re-recording the same message ID is a no-op.
// commandID is nil for messages unrelated to any tracked command.
func (r *Recorder) RecordMessageSent(ctx context.Context, messageID MessageID, commandID *CommandID, correlationID string, body any) error {
	ms := &MessageState{
		messageID:     messageID,
		correlationID: correlationID,
		body:          body,
	}
	if commandID != nil {
		ms.commandID = *commandID
		ms.hasCommand = true
	}
	r.store.addMessage(ms)
	r.observe(ctx, "message_sent", nil)
	return nil
}

// RecordHandlerStarted appends a running handler state to the command the
// message belongs to. Referencing an unrecorded message is an error; a
// message unrelated to any tracked command is a defined no-op.
func (r *Recorder) RecordHandlerStarted(ctx context.Context, messageID MessageID, correlationID string, body any, handlerType string) error {
	ms, ok := r.store.Message(messageID)
	if !ok {
		r.observe(ctx, "handler_started", ErrUnknownMessage)
		return &UnknownMessageError{MessageID: messageID}
	}

	cs, tracked := r.trackedCommand(ms)
	if !tracked {
		return nil
	}

	cs.appendHandler(&HandlerState{
		initiatingMessageID: messageID,
		handlerType:         handlerType,
		startTime:           r.now(),
		status:              HandlerRunning,
	})
	r.publish(ctx, cs, false)
	r.observe(ctx, "handler_started", nil)
	return nil
}

// RecordHandlerFinished transitions a started handler to Complete, or to
// Failed when handlerErr is non-nil, recording the completion time.
func (r *Recorder) RecordHandlerFinished(ctx context.Context, messageID MessageID, correlationID string, body any, handlerType string, handlerErr error) error {
	ms, ok := r.store.Message(messageID)
	if !ok {
		r.observe(ctx, "handler_finished", ErrUnknownMessage)
		return &UnknownMessageError{MessageID: messageID}
	}

	cs, tracked := r.trackedCommand(ms)
	if !tracked {
		return nil
	}

	completed := r.now()
	if !cs.finishHandler(messageID, handlerType, completed, handlerErr) {
		r.observe(ctx, "handler_finished", ErrUnknownHandler)
		return &UnknownHandlerError{CommandID: cs.id, MessageID: messageID, Handler: handlerType}
	}

	if r.metrics != nil {
		r.metrics.RecordHandler(ctx, handlerType, handlerErr != nil)
	}
	r.publish(ctx, cs, false)
	r.observe(ctx, "handler_finished", nil)
	return nil
}

// RecordSagaStepStarted records another step of a saga running, creating the
// saga state on first sight and linking it to the owning command when the
// triggering message belongs to one.
func (r *Recorder) RecordSagaStepStarted(ctx context.Context, messageID MessageID, correlationID string, body any, sagaID SagaID, sagaType string) error {
	ms, ok := r.store.Message(messageID)
	if !ok {
		r.observe(ctx, "saga_step_started", ErrUnknownMessage)
		return &UnknownMessageError{MessageID: messageID}
	}

	ss := r.store.getOrCreateSaga(sagaID, sagaType, r.now())
	ss.stepStarted(ms)

	if cs, tracked := r.trackedCommand(ms); tracked {
		cs.linkSaga(ss)
		r.publish(ctx, cs, false)
	}
	r.observe(ctx, "saga_step_started", nil)
	return nil
}

// RecordSagaStepFinished records a saga step ending. A non-nil stepErr is
// appended to the saga's error list permanently; finished marks the saga
// instance as having no further steps pending and sets its completion time.
func (r *Recorder) RecordSagaStepFinished(ctx context.Context, messageID MessageID, correlationID string, body any, sagaID SagaID, sagaType string, stepErr error, finished bool) error {
	ms, ok := r.store.Message(messageID)
	if !ok {
		r.observe(ctx, "saga_step_finished", ErrUnknownMessage)
		return &UnknownMessageError{MessageID: messageID}
	}

	ss := r.store.getOrCreateSaga(sagaID, sagaType, r.now())
	ss.stepFinished(stepErr, finished, r.now())

	if cs, tracked := r.trackedCommand(ms); tracked {
		r.publish(ctx, cs, false)
	}
	r.observe(ctx, "saga_step_finished", nil)
	return nil
}

// RecordCommandProgress sets the command's explicit progress, which takes
// precedence over handler-derived progress from then on. Progress must be
// within [0, 100].
func (r *Recorder) RecordCommandProgress(ctx context.Context, id CommandID, progress float64) error {
	if !govalidator.InRangeFloat64(progress, 0, 100) {
		r.observe(ctx, "command_progress", ErrInvalidProgress)
		return &InvalidProgressError{Progress: progress}
	}

	cs, ok := r.store.Command(id)
	if !ok {
		r.observe(ctx, "command_progress", ErrUnknownCommand)
		return &UnknownCommandError{CommandID: id}
	}

	cs.setExplicitProgress(progress)
	r.publish(ctx, cs, true)
	r.observe(ctx, "command_progress", nil)
	return nil
}

// trackedCommand resolves the message's owning command. ok is false when the
// message belongs to no tracked command, which callers treat as a no-op.
func (r *Recorder) trackedCommand(ms *MessageState) (*CommandState, bool) {
	cmdID, has := ms.CommandID()
	if !has {
		return nil, false
	}
	cs, ok := r.store.Command(cmdID)
	if !ok {
		// The command ID round-tripped through headers but was never
		// initiated here. Outside the tracked set, so a no-op.
		return nil, false
	}
	return cs, true
}

// publish projects the command, latches terminal status, persists the
// projection and dispatches notifications. Runs outside all entity locks so
// a slow observer cannot stall the pipeline.
func (r *Recorder) publish(ctx context.Context, cs *CommandState, progressChanged bool) {
	st := Project(cs)
	cs.noteProjected(st.Status)

	var prev *CommandStatus
	if r.sink != nil {
		if p, ok := r.sink.Previous(cs.id); ok {
			prev = p
		}
		r.sink.Upsert(st)
	}

	if r.metrics != nil && st.Status.Terminal() && (prev == nil || !prev.Status.Terminal()) {
		r.metrics.RecordTerminal(ctx, st.Status.String())
	}

	if r.notifier == nil {
		return
	}
	r.notifier.StatusChanged(st)
	switch {
	case st.Status == StatusCompleted && (prev == nil || prev.Status != StatusCompleted):
		r.notifier.Succeeded(st)
	case st.Status == StatusErrored && (prev == nil || prev.Status != StatusErrored):
		r.notifier.Errored(st)
	}
	if progressChanged {
		r.notifier.ProgressChanged(st)
	}
}

func (r *Recorder) observe(ctx context.Context, op string, err error) {
	if r.metrics != nil {
		r.metrics.RecordOperation(ctx, op, err)
	}
	if err != nil {
		// Data-consistency issues are warnings for the pipeline, never
		// crashes.
		r.logger.WarnContext(ctx, "activity record rejected",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
	}
}
