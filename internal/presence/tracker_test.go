package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenesync/internal/clock"
	"scenesync/internal/model"
)

func TestSweepMarksIdleAfterOneMissedHeartbeat(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	tr := NewTracker(clk)
	tr.Track("s1", "alice")

	// 20s of silence is past the idle threshold but short of offline.
	clk.Advance(20 * time.Second)
	tr.Sweep()

	status, ok := tr.Status("s1", "alice")
	require.True(t, ok)
	assert.Equal(t, model.PresenceIdle, status)
}

func TestSweepMarksOfflineAfterTwoMissedHeartbeats(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	tr := NewTracker(clk)
	tr.Track("s1", "alice")

	var transitions []model.PresenceStatus
	tr.OnTransition(func(sessionID, userID string, from, to model.PresenceStatus) {
		assert.Equal(t, "s1", sessionID)
		assert.Equal(t, "alice", userID)
		transitions = append(transitions, to)
	})

	clk.Advance(20 * time.Second)
	tr.Sweep()
	clk.Advance(15 * time.Second)
	tr.Sweep()

	status, ok := tr.Status("s1", "alice")
	require.True(t, ok)
	assert.Equal(t, model.PresenceOffline, status)
	assert.Equal(t, []model.PresenceStatus{model.PresenceIdle, model.PresenceOffline}, transitions)
}

func TestHeartbeatRevivesIdleParticipant(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	tr := NewTracker(clk)
	tr.Track("s1", "alice")

	clk.Advance(20 * time.Second)
	tr.Sweep()
	status, _ := tr.Status("s1", "alice")
	require.Equal(t, model.PresenceIdle, status)

	var revived bool
	tr.OnTransition(func(_, _ string, from, to model.PresenceStatus) {
		if from == model.PresenceIdle && to == model.PresenceActive {
			revived = true
		}
	})

	tr.Heartbeat("s1", "alice")
	status, _ = tr.Status("s1", "alice")
	assert.Equal(t, model.PresenceActive, status)
	assert.True(t, revived)

	// Fresh heartbeat resets the silence window.
	clk.Advance(10 * time.Second)
	tr.Sweep()
	status, _ = tr.Status("s1", "alice")
	assert.Equal(t, model.PresenceActive, status)
}

func TestHeartbeatFromUntrackedParticipantIsIgnored(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := NewTracker(clk)

	tr.Heartbeat("s1", "ghost")
	_, ok := tr.Status("s1", "ghost")
	assert.False(t, ok)
}

func TestForgetStopsTracking(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := NewTracker(clk)
	tr.Track("s1", "alice")
	tr.Track("s1", "bob")

	tr.Forget("s1", "alice")
	_, ok := tr.Status("s1", "alice")
	assert.False(t, ok)
	_, ok = tr.Status("s1", "bob")
	assert.True(t, ok)

	tr.ForgetSession("s1")
	_, ok = tr.Status("s1", "bob")
	assert.False(t, ok)
}

func TestSetThresholds(t *testing.T) {
	clk := clock.NewFake(time.Now())
	tr := NewTracker(clk)
	tr.SetThresholds(time.Second, 2*time.Second)
	tr.Track("s1", "alice")

	clk.Advance(1500 * time.Millisecond)
	tr.Sweep()
	status, _ := tr.Status("s1", "alice")
	assert.Equal(t, model.PresenceIdle, status)

	clk.Advance(time.Second)
	tr.Sweep()
	status, _ = tr.Status("s1", "alice")
	assert.Equal(t, model.PresenceOffline, status)
}
