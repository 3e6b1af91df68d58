package state

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenesync/internal/model"
)

func testSession(id string) model.Session {
	return model.Session{
		ID:       id,
		Name:     "review",
		OwnerID:  "alice",
		Settings: model.DefaultSettings(),
		Active:   true,
	}
}

func TestStoreSessionRoundTrip(t *testing.T) {
	s := NewStore(0)
	s.PutSession(testSession("s1"))

	got, ok := s.Session("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", got.ID)

	_, ok = s.Session("nope")
	assert.False(t, ok)

	s.RemoveSession("s1")
	_, ok = s.Session("s1")
	assert.False(t, ok)
}

func TestStoreParticipantsSortedByJoinTime(t *testing.T) {
	s := NewStore(0)
	s.PutSession(testSession("s1"))

	base := time.Now()
	s.UpsertParticipant("s1", model.Participant{ID: "carol", JoinedAt: base.Add(2 * time.Second)})
	s.UpsertParticipant("s1", model.Participant{ID: "alice", JoinedAt: base})
	s.UpsertParticipant("s1", model.Participant{ID: "bob", JoinedAt: base.Add(time.Second)})

	got := s.Participants("s1")
	require.Len(t, got, 3)
	assert.Equal(t, "alice", got[0].ID)
	assert.Equal(t, "bob", got[1].ID)
	assert.Equal(t, "carol", got[2].ID)
	assert.Equal(t, 3, s.ParticipantCount("s1"))
}

func TestStoreActivityRingEvictsOldest(t *testing.T) {
	s := NewStore(3)
	s.PutSession(testSession("s1"))

	for i := 0; i < 5; i++ {
		s.AppendActivity("s1", model.ActivityEvent{
			ID:   fmt.Sprintf("e%d", i),
			Type: model.ActivityJoin,
		})
	}

	got := s.Activity("s1")
	require.Len(t, got, 3)
	assert.Equal(t, "e2", got[0].ID)
	assert.Equal(t, "e4", got[2].ID)

	assert.True(t, s.HasActivity("s1", "e4"))
	assert.False(t, s.HasActivity("s1", "e0"))
}

func TestStoreSnapshotIsIsolated(t *testing.T) {
	s := NewStore(0)
	s.PutSession(testSession("s1"))
	s.UpsertParticipant("s1", model.Participant{
		ID:     "alice",
		Cursor: &model.CursorState{X: 1, Y: 2},
	})
	s.UpsertAnnotation(model.Annotation{ID: "a1", SessionID: "s1", Content: "original"})
	s.SetCamera("s1", model.CameraState{Zoom: 2})

	snap, ok := s.SnapshotSession("s1")
	require.True(t, ok)
	require.Len(t, snap.Participants, 1)
	require.Len(t, snap.Annotations, 1)
	require.NotNil(t, snap.Camera)

	// Mutating the snapshot must not leak back into the store.
	snap.Participants[0].Cursor.X = 99
	snap.Annotations[0].Content = "mutated"
	snap.Camera.Zoom = 99

	p, _ := s.Participant("s1", "alice")
	assert.Equal(t, 1.0, p.Cursor.X)
	a, _ := s.Annotation("s1", "a1")
	assert.Equal(t, "original", a.Content)
	cam, _ := s.Camera("s1")
	assert.Equal(t, 2.0, cam.Zoom)
}

func TestStoreAnnotationsSortedByCreation(t *testing.T) {
	s := NewStore(0)
	s.PutSession(testSession("s1"))

	base := time.Now()
	s.UpsertAnnotation(model.Annotation{ID: "a2", SessionID: "s1", CreatedAt: base.Add(time.Second)})
	s.UpsertAnnotation(model.Annotation{ID: "a1", SessionID: "s1", CreatedAt: base})

	got := s.Annotations("s1")
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].ID)

	s.RemoveAnnotation("s1", "a1")
	assert.Len(t, s.Annotations("s1"), 1)
}

func TestStoreCameraLifecycle(t *testing.T) {
	s := NewStore(0)
	s.PutSession(testSession("s1"))

	_, ok := s.Camera("s1")
	assert.False(t, ok)

	s.SetCamera("s1", model.CameraState{FOV: 45})
	cam, ok := s.Camera("s1")
	require.True(t, ok)
	assert.Equal(t, 45.0, cam.FOV)

	s.ClearCamera("s1")
	_, ok = s.Camera("s1")
	assert.False(t, ok)
}
