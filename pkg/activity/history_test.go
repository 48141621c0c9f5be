package activity_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagaflow/sagaflow/pkg/activity"
)

func TestCommandHistory(t *testing.T) {
	ctx := context.Background()
	f := newRecorderFixture(t)

	// Seven deploys one minute apart, plus one unrelated command.
	ids := make([]activity.CommandID, 7)
	for i := range ids {
		ids[i] = activity.NewCommandID()
		body := deployBody{Service: fmt.Sprintf("svc-%d", i), Environment: "prod"}
		require.NoError(t, f.recorder.RecordCommandInitiated(ctx, ids[i], "deploy-service", body, "alice"))
		f.clock.Advance(time.Minute)
	}
	require.NoError(t, f.recorder.RecordCommandInitiated(ctx, activity.NewCommandID(), "compact-segments", nil, "bob"))

	store := f.recorder.Store()

	t.Run("pages newest first", func(t *testing.T) {
		page, total := store.CommandHistory("deploy-service", 0, 3)
		assert.Equal(t, 7, total)
		require.Len(t, page, 3)
		assert.Equal(t, ids[6], page[0].CommandID)
		assert.Equal(t, ids[5], page[1].CommandID)
		assert.Equal(t, ids[4], page[2].CommandID)
	})

	t.Run("last page is partial", func(t *testing.T) {
		page, total := store.CommandHistory("deploy-service", 2, 3)
		assert.Equal(t, 7, total)
		require.Len(t, page, 1)
		assert.Equal(t, ids[0], page[0].CommandID)
	})

	t.Run("page beyond the end is empty", func(t *testing.T) {
		page, total := store.CommandHistory("deploy-service", 5, 3)
		assert.Equal(t, 7, total)
		assert.Empty(t, page)
	})

	t.Run("filters by command type", func(t *testing.T) {
		page, total := store.CommandHistory("compact-segments", 0, 10)
		assert.Equal(t, 1, total)
		require.Len(t, page, 1)
		assert.Equal(t, "Compact Segments", page[0].Name)
	})

	t.Run("unknown type yields nothing", func(t *testing.T) {
		page, total := store.CommandHistory("never-registered", 0, 10)
		assert.Zero(t, total)
		assert.Empty(t, page)
	})

	t.Run("invalid paging yields the total only", func(t *testing.T) {
		page, total := store.CommandHistory("deploy-service", -1, 3)
		assert.Equal(t, 7, total)
		assert.Empty(t, page)

		page, total = store.CommandHistory("deploy-service", 0, 0)
		assert.Equal(t, 7, total)
		assert.Empty(t, page)
	})
}

func TestCommandHistoryTieBreak(t *testing.T) {
	ctx := context.Background()
	f := newRecorderFixture(t)

	// Same start time for all three; insertion order breaks the tie.
	ids := make([]activity.CommandID, 3)
	for i := range ids {
		ids[i] = activity.NewCommandID()
		require.NoError(t, f.recorder.RecordCommandInitiated(ctx, ids[i], "compact-segments", nil, "bob"))
	}

	page, total := f.recorder.Store().CommandHistory("compact-segments", 0, 10)
	assert.Equal(t, 3, total)
	require.Len(t, page, 3)
	assert.Equal(t, ids[0], page[0].CommandID)
	assert.Equal(t, ids[1], page[1].CommandID)
	assert.Equal(t, ids[2], page[2].CommandID)
}
