package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagaflow/sagaflow/pkg/activity"
	"github.com/sagaflow/sagaflow/pkg/pipeline"
	"github.com/sagaflow/sagaflow/pkg/schema"
	"github.com/sagaflow/sagaflow/pkg/status"
)

type dispatchFixture struct {
	recorder   *activity.Recorder
	dispatcher *pipeline.Dispatcher
	statuses   *status.Store
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(schema.CommandDefinition{
		ID:   "deploy-service",
		Name: "Deploy Service",
	}))

	statuses := status.NewStore()
	recorder := activity.NewRecorder(activity.NewStore(), reg,
		activity.WithStatusSink(statuses),
	)
	return &dispatchFixture{
		recorder:   recorder,
		dispatcher: pipeline.NewDispatcher(recorder, nil),
		statuses:   statuses,
	}
}

// trackedMessage initiates a command and records its dispatch message, the
// way the bus does before delivery.
func (f *dispatchFixture) trackedMessage(t *testing.T) (*pipeline.Message, activity.CommandID) {
	t.Helper()
	ctx := context.Background()
	cmdID := activity.NewCommandID()
	require.NoError(t, f.recorder.RecordCommandInitiated(ctx, cmdID, "deploy-service", nil, "alice"))

	msg := pipeline.NewMessage("deploy-service", []byte(`{}`))
	msg.Headers.StampCommand(cmdID, "Deploy Service", "alice", time.Now())
	require.NoError(t, f.recorder.RecordMessageSent(ctx, msg.ID, &cmdID, "corr-1", nil))
	return msg, cmdID
}

func TestDispatchHandlerSuccess(t *testing.T) {
	f := newDispatchFixture(t)
	msg, cmdID := f.trackedMessage(t)

	var handled bool
	f.dispatcher.RegisterHandler("deploy-service", pipeline.HandlerFunc{
		HandlerName: "DeployHandler",
		Fn: func(ctx context.Context, m *pipeline.Message) error {
			handled = true
			assert.Equal(t, msg.ID, m.ID)
			return nil
		},
	})

	require.NoError(t, f.dispatcher.Dispatch(context.Background(), msg))
	assert.True(t, handled)

	st, ok := f.statuses.Get(cmdID)
	require.True(t, ok)
	assert.Equal(t, activity.StatusCompleted, st.Status)
	require.Len(t, st.Handlers, 1)
	assert.Equal(t, "DeployHandler", st.Handlers[0].Name)
}

func TestDispatchHandlerFailure(t *testing.T) {
	f := newDispatchFixture(t)
	msg, cmdID := f.trackedMessage(t)

	f.dispatcher.RegisterHandler("deploy-service", pipeline.HandlerFunc{
		HandlerName: "DeployHandler",
		Fn: func(ctx context.Context, m *pipeline.Message) error {
			return errors.New("rollout failed")
		},
	})

	err := f.dispatcher.Dispatch(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rollout failed")

	st, ok := f.statuses.Get(cmdID)
	require.True(t, ok)
	assert.Equal(t, activity.StatusErrored, st.Status)
	assert.Equal(t, "rollout failed", st.LastError)
}

func TestDispatchRecoversPanic(t *testing.T) {
	f := newDispatchFixture(t)
	msg, cmdID := f.trackedMessage(t)

	f.dispatcher.RegisterHandler("deploy-service", pipeline.HandlerFunc{
		HandlerName: "DeployHandler",
		Fn: func(ctx context.Context, m *pipeline.Message) error {
			panic("nil map write")
		},
	})

	var err error
	assert.NotPanics(t, func() {
		err = f.dispatcher.Dispatch(context.Background(), msg)
	})
	require.Error(t, err)

	var panicErr *pipeline.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "nil map write", panicErr.Value)

	st, ok := f.statuses.Get(cmdID)
	require.True(t, ok)
	assert.Equal(t, activity.StatusErrored, st.Status)
	assert.NotEmpty(t, st.StackTrace)
}

func TestDispatchContinuesPastFailingHandler(t *testing.T) {
	f := newDispatchFixture(t)
	msg, cmdID := f.trackedMessage(t)

	var secondRan bool
	f.dispatcher.RegisterHandler("deploy-service", pipeline.HandlerFunc{
		HandlerName: "FirstHandler",
		Fn: func(ctx context.Context, m *pipeline.Message) error {
			return errors.New("first broke")
		},
	})
	f.dispatcher.RegisterHandler("deploy-service", pipeline.HandlerFunc{
		HandlerName: "SecondHandler",
		Fn: func(ctx context.Context, m *pipeline.Message) error {
			secondRan = true
			return nil
		},
	})

	err := f.dispatcher.Dispatch(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, secondRan)

	st, ok := f.statuses.Get(cmdID)
	require.True(t, ok)
	require.Len(t, st.Handlers, 2)
	assert.Equal(t, activity.StatusErrored, st.Status)
}

type testSaga struct {
	name     string
	id       activity.SagaID
	finished bool
	err      error
	steps    int
}

func (s *testSaga) Name() string { return s.name }

func (s *testSaga) Resolve(msg *pipeline.Message) activity.SagaID { return s.id }

func (s *testSaga) Step(ctx context.Context, msg *pipeline.Message) (bool, error) {
	s.steps++
	return s.finished, s.err
}

func TestDispatchSaga(t *testing.T) {
	f := newDispatchFixture(t)
	msg, cmdID := f.trackedMessage(t)

	saga := &testSaga{name: "ProvisionSaga", id: activity.NewSagaID(), finished: true}
	f.dispatcher.RegisterSaga("deploy-service", saga)

	require.NoError(t, f.dispatcher.Dispatch(context.Background(), msg))
	assert.Equal(t, 1, saga.steps)

	st, ok := f.statuses.Get(cmdID)
	require.True(t, ok)
	require.Len(t, st.Sagas, 1)
	assert.Equal(t, "ProvisionSaga", st.Sagas[0].Name)
	assert.Equal(t, activity.SagaComplete, st.Sagas[0].Status)
}

func TestDispatchSagaStepError(t *testing.T) {
	f := newDispatchFixture(t)
	msg, cmdID := f.trackedMessage(t)

	saga := &testSaga{name: "ProvisionSaga", id: activity.NewSagaID(), err: errors.New("step broke")}
	f.dispatcher.RegisterSaga("deploy-service", saga)

	err := f.dispatcher.Dispatch(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step broke")

	st, ok := f.statuses.Get(cmdID)
	require.True(t, ok)
	require.Len(t, st.Sagas, 1)
	assert.Equal(t, activity.SagaRunningWithErrors, st.Sagas[0].Status)
}

func TestDispatchUntrackedMessageStillRuns(t *testing.T) {
	f := newDispatchFixture(t)

	// The message was never recorded as sent; tracking rejects the events
	// but the handler must still run.
	msg := pipeline.NewMessage("deploy-service", nil)

	var handled bool
	f.dispatcher.RegisterHandler("deploy-service", pipeline.HandlerFunc{
		HandlerName: "DeployHandler",
		Fn: func(ctx context.Context, m *pipeline.Message) error {
			handled = true
			return nil
		},
	})

	require.NoError(t, f.dispatcher.Dispatch(context.Background(), msg))
	assert.True(t, handled)
}

func TestDispatcherSubjects(t *testing.T) {
	f := newDispatchFixture(t)
	f.dispatcher.RegisterHandler("a", pipeline.HandlerFunc{HandlerName: "H", Fn: func(ctx context.Context, m *pipeline.Message) error { return nil }})
	f.dispatcher.RegisterSaga("b", &testSaga{name: "S", id: activity.NewSagaID()})
	f.dispatcher.RegisterSaga("a", &testSaga{name: "S2", id: activity.NewSagaID()})

	assert.ElementsMatch(t, []string{"a", "b"}, f.dispatcher.Subjects())
}
