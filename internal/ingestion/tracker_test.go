package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerLifecycle(t *testing.T) {
	tracker := NewTracker()

	task := tracker.Create(42)
	assert.Equal(t, TaskPending, task.Status)

	got, ok := tracker.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, int64(42), got.SessionID)

	bySession, ok := tracker.GetBySession(42)
	require.True(t, ok)
	assert.Equal(t, task.ID, bySession.ID)

	tracker.SetRunning(task.ID)
	got, _ = tracker.Get(task.ID)
	assert.Equal(t, TaskRunning, got.Status)

	tracker.SetSucceeded(task.ID, 7)
	got, _ = tracker.Get(task.ID)
	assert.Equal(t, TaskSucceeded, got.Status)
	assert.Equal(t, 7, got.ChunksStored)
}

func TestTrackerUnknownTask(t *testing.T) {
	tracker := NewTracker()

	_, ok := tracker.Get("nope")
	assert.False(t, ok)

	_, ok = tracker.GetBySession(1)
	assert.False(t, ok)
}

func TestTrackerSubscribeReceivesUpdates(t *testing.T) {
	tracker := NewTracker()
	task := tracker.Create(1)

	updates, cancel := tracker.Subscribe(task.ID)
	defer cancel()

	tracker.SetRunning(task.ID)
	tracker.SetFailed(task.ID, "boom")

	var last Task
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case update, open := <-updates:
			if !open {
				done = true
				break
			}
			last = update
		case <-timeout:
			t.Fatal("timed out waiting for updates")
		}
	}

	assert.Equal(t, TaskFailed, last.Status)
	assert.Equal(t, "boom", last.Error)
}

func TestTrackerSubscribeTerminalTask(t *testing.T) {
	tracker := NewTracker()
	task := tracker.Create(1)
	tracker.SetSucceeded(task.ID, 3)

	updates, cancel := tracker.Subscribe(task.ID)
	defer cancel()

	update, open := <-updates
	require.True(t, open)
	assert.Equal(t, TaskSucceeded, update.Status)

	_, open = <-updates
	assert.False(t, open)
}
