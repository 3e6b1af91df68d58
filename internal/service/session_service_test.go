package service

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenesync/internal/model"
)

var inviteCodePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

func TestCreateSessionIssuesInviteCodeAndExpiry(t *testing.T) {
	h := newHarness(t)
	resp := h.create(t)

	assert.Regexp(t, inviteCodePattern, resp.Session.InviteCode)
	assert.Equal(t, model.RoleOwner, resp.Participant.Role)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, resp.Session.CreatedAt.Add(24*time.Hour), resp.Session.ExpiresAt)

	// The invite code is reserved in the cache immediately.
	exists, err := h.cache.Exists(context.Background(), resp.Session.InviteCode)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateSessionCodesAreUnique(t *testing.T) {
	h := newHarness(t)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		resp, err := h.sessions.Create(context.Background(), "review", "1ABC",
			fmt.Sprintf("u%d", i), "User")
		require.NoError(t, err)
		require.Regexp(t, inviteCodePattern, resp.Session.InviteCode)
		assert.False(t, seen[resp.Session.InviteCode], "invite code %s issued twice", resp.Session.InviteCode)
		seen[resp.Session.InviteCode] = true
	}
}

func TestConcurrentCreatesNeverShareInviteCode(t *testing.T) {
	h := newHarness(t)

	const n = 1000
	codes := make(chan string, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := h.sessions.Create(context.Background(), "review", "1ABC",
				fmt.Sprintf("u%d", i), "User")
			if err != nil {
				errs <- err
				return
			}
			codes <- resp.Session.InviteCode
		}(i)
	}
	wg.Wait()
	close(codes)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent create failed: %v", err)
	}
	seen := make(map[string]bool)
	for code := range codes {
		require.False(t, seen[code], "invite code %s activated twice", code)
		seen[code] = true
	}
	require.Len(t, seen, n)
}

func TestColorsStayUniquePastPalette(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)

	settings := model.DefaultSettings()
	settings.MaxParticipants = 24
	require.NoError(t, h.sessions.UpdateSettings(context.Background(), created.Session.ID, "alice", settings))

	for i := 0; i < 23; i++ {
		_, err := h.sessions.Join(context.Background(), created.Session.ID,
			fmt.Sprintf("guest-%02d", i), fmt.Sprintf("Guest %d", i))
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	for _, p := range h.store.Participants(created.Session.ID) {
		require.Regexp(t, `^#[0-9A-F]{6}$`, p.Color)
		require.False(t, seen[p.Color], "color %s issued twice", p.Color)
		seen[p.Color] = true
	}
	require.Len(t, seen, 24)
}

func TestJoinByInviteCode(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)

	resp, err := h.sessions.Join(context.Background(), created.Session.InviteCode, "bob", "Bob")
	require.NoError(t, err)

	assert.Equal(t, created.Session.ID, resp.Session.ID)
	assert.Equal(t, model.RoleViewer, resp.Participant.Role, "joiners default to viewer")
	assert.NotEqual(t, created.Participant.Color, resp.Participant.Color, "colors are unique per session")
	assert.Equal(t, 2, h.store.ParticipantCount(created.Session.ID))
}

func TestJoinFullSession(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)

	for i := 1; i < created.Session.Settings.MaxParticipants; i++ {
		_, err := h.sessions.Join(context.Background(), created.Session.ID, fmt.Sprintf("u%d", i), "User")
		require.NoError(t, err)
	}

	_, err := h.sessions.Join(context.Background(), created.Session.ID, "late", "Latecomer")
	assert.ErrorIs(t, err, ErrSessionFull)

	// A rejoining participant is not a new seat and still gets in.
	_, err = h.sessions.Join(context.Background(), created.Session.ID, "u1", "User")
	assert.NoError(t, err)
}

func TestJoinExpiredSession(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)

	h.clk.Advance(24*time.Hour + time.Minute)
	_, err := h.sessions.Join(context.Background(), created.Session.ID, "bob", "Bob")
	assert.ErrorIs(t, err, ErrSessionExpired)

	// Lazy expiry deactivated the session on first access.
	got, ok := h.store.Session(created.Session.ID)
	require.True(t, ok)
	assert.False(t, got.Active)
}

func TestJoinUnknownSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.sessions.Join(context.Background(), "NOPE1234", "bob", "Bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetRolePromotesToPresenter(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	_, err := h.sessions.Join(context.Background(), created.Session.ID, "bob", "Bob")
	require.NoError(t, err)

	err = h.sessions.SetRole(context.Background(), created.Session.ID, "alice", "bob", model.RolePresenter)
	require.NoError(t, err)

	p, _ := h.store.Participant(created.Session.ID, "bob")
	assert.Equal(t, model.RolePresenter, p.Role)
}

func TestSetRoleRules(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	_, err := h.sessions.Join(context.Background(), created.Session.ID, "bob", "Bob")
	require.NoError(t, err)

	// Non-owners cannot change roles.
	err = h.sessions.SetRole(context.Background(), created.Session.ID, "bob", "alice", model.RoleViewer)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// The owner cannot demote themselves.
	err = h.sessions.SetRole(context.Background(), created.Session.ID, "alice", "alice", model.RoleViewer)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Ownership is never granted through a role change.
	err = h.sessions.SetRole(context.Background(), created.Session.ID, "alice", "bob", model.RoleOwner)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestLeaveDiscardsPendingAndPresence(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)

	_, err := h.annotations.Add(context.Background(), created.Session.ID, "alice", "note", model.Vec3{}, "")
	require.NoError(t, err)

	err = h.sessions.Leave(context.Background(), created.Session.ID, "alice")
	require.NoError(t, err)

	_, ok := h.store.Participant(created.Session.ID, "alice")
	assert.False(t, ok)
	_, ok = h.tracker.Status(created.Session.ID, "alice")
	assert.False(t, ok)

	// The owner left without a successor.
	got, _ := h.store.Session(created.Session.ID)
	assert.True(t, got.NeedsModeration)
}

func TestKickRequiresOwner(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	_, err := h.sessions.Join(context.Background(), created.Session.ID, "bob", "Bob")
	require.NoError(t, err)
	_, err = h.sessions.Join(context.Background(), created.Session.ID, "carol", "Carol")
	require.NoError(t, err)

	err = h.sessions.Kick(context.Background(), created.Session.ID, "bob", "carol")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = h.sessions.Kick(context.Background(), created.Session.ID, "alice", "carol")
	require.NoError(t, err)
	_, ok := h.store.Participant(created.Session.ID, "carol")
	assert.False(t, ok)
}

func TestKickedLeaderReleasesFollowMode(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	_, err := h.sessions.Join(context.Background(), created.Session.ID, "bob", "Bob")
	require.NoError(t, err)
	require.NoError(t, h.sessions.SetRole(context.Background(), created.Session.ID, "alice", "bob", model.RolePresenter))

	require.NoError(t, h.viewports.RequestControl(context.Background(), created.Session.ID, "bob"))
	got, _ := h.store.Session(created.Session.ID)
	require.Equal(t, "bob", got.Settings.LeaderID)
	require.Equal(t, model.FollowOn, got.Settings.FollowMode)

	require.NoError(t, h.sessions.Kick(context.Background(), created.Session.ID, "alice", "bob"))

	got, _ = h.store.Session(created.Session.ID)
	assert.Empty(t, got.Settings.LeaderID)
	assert.Equal(t, model.FollowOff, got.Settings.FollowMode)
	_, hasCamera := h.store.Camera(created.Session.ID)
	assert.False(t, hasCamera)
}

func TestUpdateSettingsPreservesLeadership(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	require.NoError(t, h.viewports.RequestControl(context.Background(), created.Session.ID, "alice"))

	settings := model.DefaultSettings()
	settings.AllowAnnotations = false
	settings.MaxParticipants = 4
	require.NoError(t, h.sessions.UpdateSettings(context.Background(), created.Session.ID, "alice", settings))

	got, _ := h.store.Session(created.Session.ID)
	assert.False(t, got.Settings.AllowAnnotations)
	assert.Equal(t, 4, got.Settings.MaxParticipants)
	assert.Equal(t, "alice", got.Settings.LeaderID, "settings writes do not clobber leadership")
	assert.Equal(t, model.FollowOn, got.Settings.FollowMode)
}

func TestUpdateSettingsOwnerOnly(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	_, err := h.sessions.Join(context.Background(), created.Session.ID, "bob", "Bob")
	require.NoError(t, err)

	err = h.sessions.UpdateSettings(context.Background(), created.Session.ID, "bob", model.DefaultSettings())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestOfflineTimeoutRemovesParticipant(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	_, err := h.sessions.Join(context.Background(), created.Session.ID, "bob", "Bob")
	require.NoError(t, err)

	// Bob keeps silent; Alice heartbeats through both sweeps.
	h.clk.Advance(20 * time.Second)
	h.sessions.Heartbeat(context.Background(), created.Session.ID, "alice")
	h.tracker.Sweep()

	p, ok := h.store.Participant(created.Session.ID, "bob")
	require.True(t, ok, "one missed heartbeat is idle, not gone")
	assert.Equal(t, model.PresenceIdle, p.Status)

	h.clk.Advance(15 * time.Second)
	h.sessions.Heartbeat(context.Background(), created.Session.ID, "alice")
	h.tracker.Sweep()

	_, ok = h.store.Participant(created.Session.ID, "bob")
	assert.False(t, ok, "offline participants are removed as departures")
	_, ok = h.store.Participant(created.Session.ID, "alice")
	assert.True(t, ok)
}

func TestExpireSweepDeactivatesAndCleansUp(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	require.NoError(t, h.viewports.RequestControl(context.Background(), created.Session.ID, "alice"))

	h.clk.Advance(25 * time.Hour)
	h.sessions.ExpireSweep(context.Background())

	got, _ := h.store.Session(created.Session.ID)
	assert.False(t, got.Active)

	exists, _ := h.cache.Exists(context.Background(), created.Session.InviteCode)
	assert.False(t, exists, "expired invite codes are released")
	_, ok := h.tracker.Status(created.Session.ID, "alice")
	assert.False(t, ok)
}

func TestPersistAllWritesActiveSessions(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	_, err := h.annotations.Add(context.Background(), created.Session.ID, "alice", "note", model.Vec3{X: 1}, "")
	require.NoError(t, err)

	h.sessions.PersistAll(context.Background())

	session, participants, err := h.repo.Load(context.Background(), created.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Len(t, participants, 1)

	stored, err := h.annRepo.LoadBySession(context.Background(), created.Session.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestJoinRehydratesPersistedSession(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	h.sessions.PersistAll(context.Background())

	// Simulate a restart: the in-memory projection is gone, the durable
	// copy and the invite mapping are not.
	h.store.RemoveSession(created.Session.ID)

	resp, err := h.sessions.Join(context.Background(), created.Session.InviteCode, "bob", "Bob")
	require.NoError(t, err)
	assert.Equal(t, created.Session.ID, resp.Session.ID)

	// The persisted owner is back in the roster, offline until they return.
	owner, ok := h.store.Participant(created.Session.ID, "alice")
	require.True(t, ok)
	assert.Equal(t, model.PresenceOffline, owner.Status)
}

func TestSnapshotReflectsLiveState(t *testing.T) {
	h := newHarness(t)
	created := h.create(t)
	_, err := h.annotations.Add(context.Background(), created.Session.ID, "alice", "note", model.Vec3{}, "")
	require.NoError(t, err)

	snap, err := h.sessions.Snapshot(created.Session.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 1)
	assert.Len(t, snap.Annotations, 1)
	assert.NotEmpty(t, snap.Activity, "session creation is on the feed")
}
