package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/sagaflow/sagaflow/pkg/activity"
)

// Handler is one independent unit of processing logic invoked in response
// to a message.
type Handler interface {
	// Name identifies the handler in activity tracking.
	Name() string

	// Handle processes the message.
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a named function to the Handler interface.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, msg *Message) error
}

func (h HandlerFunc) Name() string { return h.HandlerName }

func (h HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return h.Fn(ctx, msg)
}

// Saga is a multi-step, stateful correlation of messages. The dispatcher
// resolves the instance ID before running the step so that tracking can
// record the step even when the step itself fails.
type Saga interface {
	// Name identifies the saga type in activity tracking.
	Name() string

	// Resolve returns the saga instance the message belongs to.
	Resolve(msg *Message) activity.SagaID

	// Step processes the message. finished reports that the saga instance
	// has no further steps pending.
	Step(ctx context.Context, msg *Message) (finished bool, err error)
}

// PanicError is a recovered handler or saga panic with its captured stack,
// surfaced through the status projection's stack trace field.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panicked: %v", e.Value)
}

// StackTrace returns the stack captured at the panic site.
func (e *PanicError) StackTrace() string { return e.Stack }

// Dispatcher invokes the handlers and sagas registered for a message's
// subject, recording lifecycle events around each invocation: started
// before, finished (with the error, if any) after. Panics are recovered,
// recorded as failures and not re-raised into the bus.
type Dispatcher struct {
	recorder *activity.Recorder
	logger   *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	sagas    map[string][]Saga
}

// NewDispatcher creates a dispatcher recording through the given recorder.
// A nil logger means slog.Default().
func NewDispatcher(recorder *activity.Recorder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		recorder: recorder,
		logger:   logger,
		handlers: make(map[string][]Handler),
		sagas:    make(map[string][]Saga),
	}
}

// RegisterHandler subscribes a handler to a subject.
func (d *Dispatcher) RegisterHandler(subject string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[subject] = append(d.handlers[subject], h)
}

// RegisterSaga subscribes a saga to a subject.
func (d *Dispatcher) RegisterSaga(subject string, s Saga) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sagas[subject] = append(d.sagas[subject], s)
}

// Subjects returns every subject with at least one handler or saga.
func (d *Dispatcher) Subjects() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := make(map[string]struct{}, len(d.handlers)+len(d.sagas))
	var out []string
	for subject := range d.handlers {
		if _, ok := seen[subject]; !ok {
			seen[subject] = struct{}{}
			out = append(out, subject)
		}
	}
	for subject := range d.sagas {
		if _, ok := seen[subject]; !ok {
			seen[subject] = struct{}{}
			out = append(out, subject)
		}
	}
	return out
}

// Dispatch delivers the message to every registered handler and saga for
// its subject. Processing errors are recorded in activity tracking and
// joined into the returned error; tracking rejections are logged as
// warnings without failing delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *Message) error {
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[msg.Subject]...)
	sagas := append([]Saga(nil), d.sagas[msg.Subject]...)
	d.mu.RUnlock()

	correlation := msg.Headers.CorrelationID()
	var failures []error

	for _, h := range handlers {
		// Tracking rejections are data-consistency warnings; the message is
		// still processed.
		if err := d.recorder.RecordHandlerStarted(ctx, msg.ID, correlation, msg.Body, h.Name()); err != nil {
			d.warnTracking(ctx, "handler started", h.Name(), err)
		}

		handleErr := d.invokeHandler(ctx, h, msg)
		if err := d.recorder.RecordHandlerFinished(ctx, msg.ID, correlation, msg.Body, h.Name(), handleErr); err != nil {
			d.warnTracking(ctx, "handler finished", h.Name(), err)
		}
		if handleErr != nil {
			failures = append(failures, fmt.Errorf("handler %s: %w", h.Name(), handleErr))
		}
	}

	for _, s := range sagas {
		sagaID := s.Resolve(msg)
		if err := d.recorder.RecordSagaStepStarted(ctx, msg.ID, correlation, msg.Body, sagaID, s.Name()); err != nil {
			d.warnTracking(ctx, "saga step started", s.Name(), err)
		}

		finished, stepErr := d.invokeSaga(ctx, s, msg)
		if err := d.recorder.RecordSagaStepFinished(ctx, msg.ID, correlation, msg.Body, sagaID, s.Name(), stepErr, finished); err != nil {
			d.warnTracking(ctx, "saga step finished", s.Name(), err)
		}
		if stepErr != nil {
			failures = append(failures, fmt.Errorf("saga %s: %w", s.Name(), stepErr))
		}
	}

	return errors.Join(failures...)
}

func (d *Dispatcher) invokeHandler(ctx context.Context, h Handler, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return h.Handle(ctx, msg)
}

func (d *Dispatcher) invokeSaga(ctx context.Context, s Saga, msg *Message) (finished bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return s.Step(ctx, msg)
}

func (d *Dispatcher) warnTracking(ctx context.Context, stage, name string, err error) {
	d.logger.WarnContext(ctx, "activity tracking rejected event",
		slog.String("stage", stage),
		slog.String("name", name),
		slog.String("error", err.Error()),
	)
}
