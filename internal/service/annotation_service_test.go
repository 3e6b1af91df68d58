package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenesync/internal/model"
)

func TestAddAnnotationVisibleImmediately(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)

	ann, err := h.annotations.Add(context.Background(), created.Session.ID, "alice", "check this residue", model.Vec3{X: 1, Y: 2, Z: 3}, "GLU-35")
	require.NoError(t, err)

	got, ok := h.store.Annotation(created.Session.ID, ann.ID)
	require.True(t, ok, "optimistic add lands before any round-trip")
	assert.Equal(t, "check this residue", got.Content)
	assert.Equal(t, "alice", got.AuthorID)
	assert.Equal(t, created.Participant.Color, got.Color, "annotations inherit the author's color")
}

func TestAddAnnotationRolledBackOnTransportFailure(t *testing.T) {
	h := newHarnessWithChannel(t, failingChannel{})
	created := h.create(t)

	_, err := h.annotations.Add(context.Background(), created.Session.ID, "alice", "doomed", model.Vec3{}, "")
	require.ErrorIs(t, err, ErrTransportFailure)

	// The optimistic insert was undone; no ghost annotation remains.
	assert.Empty(t, h.store.Annotations(created.Session.ID))
}

func TestEditAnnotationRolledBackOnTransportFailure(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	ann, err := h.annotations.Add(context.Background(), created.Session.ID, "alice", "original", model.Vec3{}, "")
	require.NoError(t, err)

	// The channel dies after the add.
	broken := NewAnnotationService(h.store, h.engine, failingChannel{}, h.clk)
	content := "edited"
	err = broken.Edit(context.Background(), created.Session.ID, "alice", ann.ID, model.AnnotationPatch{Content: &content})
	require.ErrorIs(t, err, ErrTransportFailure)

	got, _ := h.store.Annotation(created.Session.ID, ann.ID)
	assert.Equal(t, "original", got.Content, "failed edit must restore the prior state")
}

func TestEditByNonAuthorDenied(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	_, err := h.sessions.Join(context.Background(), created.Session.ID, "bob", "Bob")
	require.NoError(t, err)
	require.NoError(t, h.sessions.SetRole(context.Background(), created.Session.ID, "alice", "bob", model.RolePresenter))

	ann, err := h.annotations.Add(context.Background(), created.Session.ID, "alice", "mine", model.Vec3{}, "")
	require.NoError(t, err)

	content := "stolen"
	err = h.annotations.Edit(context.Background(), created.Session.ID, "bob", ann.ID, model.AnnotationPatch{Content: &content})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = h.annotations.Delete(context.Background(), created.Session.ID, "bob", ann.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestViewerCannotAnnotate(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	_, err := h.sessions.Join(context.Background(), created.Session.ID, "bob", "Bob")
	require.NoError(t, err)

	_, err = h.annotations.Add(context.Background(), created.Session.ID, "bob", "nope", model.Vec3{}, "")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAnnotationsDisabledBySettings(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)

	settings := model.DefaultSettings()
	settings.AllowAnnotations = false
	require.NoError(t, h.sessions.UpdateSettings(context.Background(), created.Session.ID, "alice", settings))

	_, err := h.annotations.Add(context.Background(), created.Session.ID, "alice", "blocked", model.Vec3{}, "")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestEditUnknownAnnotation(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)

	content := "x"
	err := h.annotations.Edit(context.Background(), created.Session.ID, "alice", "a_missing", model.AnnotationPatch{Content: &content})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesAnnotation(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	ann, err := h.annotations.Add(context.Background(), created.Session.ID, "alice", "temp", model.Vec3{}, "")
	require.NoError(t, err)

	require.NoError(t, h.annotations.Delete(context.Background(), created.Session.ID, "alice", ann.ID))
	_, ok := h.store.Annotation(created.Session.ID, ann.ID)
	assert.False(t, ok)
}

func TestHandleRemoteAddFromAnotherInstance(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)

	remote := model.Annotation{
		ID:        "a_remote01",
		SessionID: created.Session.ID,
		AuthorID:  "bob",
		Content:   "from elsewhere",
		UpdatedAt: h.clk.Now(),
	}
	h.annotations.HandleRemoteAdd(created.Session.ID, "bob", model.AnnotationAddPayload{Annotation: remote})

	got, ok := h.store.Annotation(created.Session.ID, "a_remote01")
	require.True(t, ok)
	assert.Equal(t, "from elsewhere", got.Content)

	// Redelivery is a no-op.
	h.annotations.HandleRemoteAdd(created.Session.ID, "bob", model.AnnotationAddPayload{Annotation: remote})
	assert.Len(t, h.store.Annotations(created.Session.ID), 1)
}

func TestOwnEchoConfirmsPendingUpdate(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)

	ann, err := h.annotations.Add(context.Background(), created.Session.ID, "alice", "mine", model.Vec3{}, "")
	require.NoError(t, err)
	_, pending := h.engine.Pending(ann.ID)
	require.True(t, pending)

	// The channel delivers this instance's own publish back to it.
	h.annotations.HandleRemoteAdd(created.Session.ID, "alice", model.AnnotationAddPayload{Annotation: *ann})

	_, pending = h.engine.Pending(ann.ID)
	assert.False(t, pending, "an echo settles the pending update")
	got, _ := h.store.Annotation(created.Session.ID, ann.ID)
	assert.Equal(t, "mine", got.Content)
}
