package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/layers"
)

func TestSessionSnapshotIsCopy(t *testing.T) {
	sess := NewSession("r1", "acme", testArchitecture, layers.All(), fixedClock)
	sess.Log("hello")

	snap := sess.Snapshot()
	snap.Logs[0].Message = "mutated"
	snap.Layers[0].State = domain.Complete{Threat: "x"}

	again := sess.Snapshot()
	assert.Equal(t, "hello", again.Logs[0].Message)
	assert.Equal(t, domain.StatusPending, again.Layers[0].Status())
	assert.Equal(t, fixedClock.Now(), again.StartedAt)
}

func TestSessionFinishClosesSubscribers(t *testing.T) {
	sess := NewSession("r1", "acme", testArchitecture, layers.All(), fixedClock)
	events, _ := sess.Subscribe()

	sess.SetSummary("sum")
	sess.Finish(domain.RunCompleted)
	sess.Finish(domain.RunStopped) // no-op

	var got []domain.Event
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, domain.EventSummary, got[0].Type)
	assert.Equal(t, domain.RunCompleted, got[1].Status)
	assert.Equal(t, domain.RunCompleted, sess.Snapshot().Status)
	assert.False(t, sess.Active())
	assert.False(t, sess.RequestStop())
}

func TestSessionCancelSubscription(t *testing.T) {
	sess := NewSession("r1", "acme", testArchitecture, layers.All(), fixedClock)
	events, cancel := sess.Subscribe()
	cancel()
	cancel()

	sess.Log("after cancel")
	_, open := <-events
	assert.False(t, open)
}

func TestRestoreSession(t *testing.T) {
	run := NewSession("r1", "acme", testArchitecture, layers.All(), fixedClock).Snapshot()
	require.Equal(t, domain.RunRunning, run.Status)

	sess := RestoreSession(run, fixedClock)
	assert.Equal(t, domain.RunStopped, sess.Snapshot().Status)
	assert.False(t, sess.Active())
	select {
	case <-sess.Done():
	default:
		t.Fatal("restored session should be done")
	}
	// the source run is untouched
	assert.Equal(t, domain.RunRunning, run.Status)
}
