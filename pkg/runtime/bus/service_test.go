package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagaflow/sagaflow/pkg/activity"
	"github.com/sagaflow/sagaflow/pkg/pipeline"
	"github.com/sagaflow/sagaflow/pkg/sagaflow"
	"github.com/sagaflow/sagaflow/pkg/schema"
)

func newServiceFixture(t *testing.T) (*Service, *sagaflow.Module, *pipeline.Dispatcher) {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(schema.CommandDefinition{
		ID:   "deploy-service",
		Name: "Deploy Service",
	}))

	module := sagaflow.New(reg)
	dispatcher := pipeline.NewDispatcher(module.Recorder(), nil)
	return New(module, dispatcher), module, dispatcher
}

func TestServiceLifecycleWithEmbeddedServer(t *testing.T) {
	svc, module, dispatcher := newServiceFixture(t)
	ctx := context.Background()

	handled := make(chan struct{}, 1)
	dispatcher.RegisterHandler("deploy-service", pipeline.HandlerFunc{
		HandlerName: "DeployHandler",
		Fn: func(ctx context.Context, m *pipeline.Message) error {
			handled <- struct{}{}
			return nil
		},
	})

	assert.Equal(t, "command-bus", svc.Name())
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop(ctx)

	assert.NotEmpty(t, svc.URL())
	assert.NotNil(t, svc.Bus())
	assert.NoError(t, svc.HealthCheck(ctx))

	// The service attached itself as the module's publisher, so a submit
	// travels the full path: record, publish, deliver, track.
	id, err := module.Submit(ctx, "deploy-service", nil, "alice")
	require.NoError(t, err)

	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	require.Eventually(t, func() bool {
		st, ok := module.GetCommand(id)
		return ok && st.Status == activity.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServiceHealthCheckBeforeStart(t *testing.T) {
	svc, _, _ := newServiceFixture(t)
	assert.Error(t, svc.HealthCheck(context.Background()))
}

func TestServiceStopBeforeStart(t *testing.T) {
	svc, _, _ := newServiceFixture(t)
	assert.NoError(t, svc.Stop(context.Background()))
}
