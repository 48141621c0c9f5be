package recurring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagaflow/sagaflow/pkg/activity"
	"github.com/sagaflow/sagaflow/pkg/schema"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []submission
}

type submission struct {
	commandType    string
	initiatingUser string
}

func (f *fakeSubmitter) Submit(ctx context.Context, commandType string, body any, initiatingUser string) (activity.CommandID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, submission{commandType: commandType, initiatingUser: initiatingUser})
	return activity.NewCommandID(), nil
}

func (f *fakeSubmitter) submissions() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.calls...)
}

func TestNewSchedulerCountsRecurringDefinitions(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(schema.CommandDefinition{ID: "one-shot", Name: "One Shot"}))
	require.NoError(t, reg.Register(schema.CommandDefinition{ID: "nightly", Name: "Nightly", CronSchedule: "0 3 * * *"}))
	require.NoError(t, reg.Register(schema.CommandDefinition{ID: "hourly", Name: "Hourly", CronSchedule: "@hourly"}))

	s, err := NewScheduler(reg, &fakeSubmitter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())
	assert.Equal(t, "recurring-commands", s.Name())
}

func TestNewSchedulerRejectsInvalidCron(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(schema.CommandDefinition{ID: "broken", Name: "Broken", CronSchedule: "not a schedule"}))

	_, err := NewScheduler(reg, &fakeSubmitter{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestSchedulerSubmitsAsSchedulerUser(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(schema.CommandDefinition{ID: "tick", Name: "Tick", CronSchedule: "@every 100ms"}))

	sub := &fakeSubmitter{}
	s, err := NewScheduler(reg, sub, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	require.Eventually(t, func() bool {
		return len(sub.submissions()) >= 2
	}, 3*time.Second, 20*time.Millisecond)

	for _, call := range sub.submissions() {
		assert.Equal(t, "tick", call.commandType)
		assert.Equal(t, SchedulerUser, call.initiatingUser)
	}
}

func TestSchedulerStopWaits(t *testing.T) {
	reg := schema.NewRegistry()
	s, err := NewScheduler(reg, &fakeSubmitter{}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.NoError(t, s.Stop(ctx))
}
