package service

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"scenesync/internal/broadcast"
	"scenesync/internal/clock"
	"scenesync/internal/model"
	"scenesync/internal/state"
	"scenesync/internal/viewport"
)

// ViewportService arbitrates camera leadership and relays throttled
// camera and cursor updates to the session.
type ViewportService struct {
	store   *state.Store
	coord   *viewport.Coordinator
	channel broadcast.Channel
	clk     clock.Clock

	mu       sync.Mutex
	ctx      context.Context
	cameras  map[string]*viewport.Throttle // keyed by session id
	cursors  map[string]*viewport.Throttle // keyed by session id + user id
}

// NewViewportService creates a viewport service
func NewViewportService(store *state.Store, coord *viewport.Coordinator, channel broadcast.Channel, clk clock.Clock) *ViewportService {
	return &ViewportService{
		store:   store,
		coord:   coord,
		channel: channel,
		clk:     clk,
		cameras: make(map[string]*viewport.Throttle),
		cursors: make(map[string]*viewport.Throttle),
	}
}

// Start fixes the context used by lazily created throttle loops
func (v *ViewportService) Start(ctx context.Context) {
	v.mu.Lock()
	v.ctx = ctx
	v.mu.Unlock()
}

// RequestControl makes the user the session's camera leader and turns
// follow mode on for everyone else
func (v *ViewportService) RequestControl(ctx context.Context, sessionID, userID string) error {
	session, ok := v.store.Session(sessionID)
	if !ok {
		return ErrNotFound
	}
	p, ok := v.store.Participant(sessionID, userID)
	if !ok {
		return ErrNotFound
	}
	if !p.Role.CanRequestCamera() || !session.Settings.AllowCameraControl {
		return ErrPermissionDenied
	}
	if err := v.coord.RequestControl(sessionID, userID); err != nil {
		if errors.Is(err, viewport.ErrControlHeld) {
			return ErrPermissionDenied
		}
		return err
	}

	session.Settings.LeaderID = userID
	session.Settings.FollowMode = model.FollowOn
	v.store.PutSession(session)

	now := v.clk.Now()
	v.publish(ctx, model.MsgSessionUpdate, sessionID, userID, model.SessionUpdatePayload{Settings: session.Settings})
	logActivity(ctx, v.store, v.channel, sessionID,
		newActivity(now, model.ActivityCameraMove, userID, p.Name+" is guiding the camera", nil))
	return nil
}

// ReleaseControl gives up camera leadership and turns follow mode off
func (v *ViewportService) ReleaseControl(ctx context.Context, sessionID, userID string) error {
	if err := v.coord.ReleaseControl(sessionID, userID); err != nil {
		if errors.Is(err, viewport.ErrNotLeader) {
			return ErrPermissionDenied
		}
		return err
	}
	v.clearLeadership(ctx, sessionID, userID)

	if p, ok := v.store.Participant(sessionID, userID); ok {
		logActivity(ctx, v.store, v.channel, sessionID,
			newActivity(v.clk.Now(), model.ActivityCameraMove, userID, p.Name+" released the camera", nil))
	}
	return nil
}

// UpdateCamera records the leader's camera state. Broadcasts are
// throttled per session; only the latest state in each window is sent.
func (v *ViewportService) UpdateCamera(ctx context.Context, sessionID, userID string, cam model.CameraState) error {
	if !v.coord.IsLeader(sessionID, userID) {
		return ErrPermissionDenied
	}
	v.store.SetCamera(sessionID, cam)
	v.cameraThrottle(ctx, sessionID).Offer(cam)
	return nil
}

// UpdateCursor records a participant's 2D cursor. Broadcasts are
// throttled per user.
func (v *ViewportService) UpdateCursor(ctx context.Context, sessionID, userID string, cursor model.CursorState) error {
	p, ok := v.store.Participant(sessionID, userID)
	if !ok {
		return ErrNotFound
	}
	p.Cursor = &cursor
	v.store.UpsertParticipant(sessionID, p)
	v.cursorThrottle(ctx, sessionID, userID).Offer(cursor)
	return nil
}

// HandleDeparture releases leadership when the departing user held it
func (v *ViewportService) HandleDeparture(ctx context.Context, sessionID, userID string) {
	if v.coord.ClearIfLeader(sessionID, userID) {
		v.clearLeadership(ctx, sessionID, userID)
	}
	v.mu.Lock()
	delete(v.cursors, sessionID+"/"+userID)
	v.mu.Unlock()
}

// DropSession discards all viewport state for a session
func (v *ViewportService) DropSession(sessionID string) {
	v.coord.DropSession(sessionID)
	v.mu.Lock()
	delete(v.cameras, sessionID)
	for key := range v.cursors {
		if len(key) > len(sessionID) && key[:len(sessionID)+1] == sessionID+"/" {
			delete(v.cursors, key)
		}
	}
	v.mu.Unlock()
}

func (v *ViewportService) clearLeadership(ctx context.Context, sessionID, userID string) {
	session, ok := v.store.Session(sessionID)
	if !ok {
		return
	}
	session.Settings.LeaderID = ""
	session.Settings.FollowMode = model.FollowOff
	v.store.PutSession(session)
	v.store.ClearCamera(sessionID)
	v.publish(ctx, model.MsgSessionUpdate, sessionID, userID, model.SessionUpdatePayload{Settings: session.Settings})
}

// cameraThrottle lazily creates the per-session camera throttle and its
// flush loop
func (v *ViewportService) cameraThrottle(ctx context.Context, sessionID string) *viewport.Throttle {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.cameras[sessionID]
	if !ok {
		t = viewport.NewThrottle(v.clk, viewport.CameraInterval, func(value any) {
			cam, ok := value.(model.CameraState)
			if !ok {
				return
			}
			leader, ok := v.coord.Leader(sessionID)
			if !ok {
				return
			}
			v.publish(context.Background(), model.MsgCameraUpdate, sessionID, leader,
				model.CameraUpdatePayload{UserID: leader, State: cam})
		})
		v.cameras[sessionID] = t
		go t.Run(v.runCtx(ctx))
	}
	return t
}

// cursorThrottle lazily creates a per-user cursor throttle and its flush loop
func (v *ViewportService) cursorThrottle(ctx context.Context, sessionID, userID string) *viewport.Throttle {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := sessionID + "/" + userID
	t, ok := v.cursors[key]
	if !ok {
		t = viewport.NewThrottle(v.clk, viewport.CursorInterval, func(value any) {
			cursor, ok := value.(model.CursorState)
			if !ok {
				return
			}
			v.publish(context.Background(), model.MsgCursorMove, sessionID, userID,
				model.CursorMovePayload{UserID: userID, Cursor: cursor})
		})
		v.cursors[key] = t
		go t.Run(v.runCtx(ctx))
	}
	return t
}

// runCtx prefers the long-lived context set by Start over the caller's
// request-scoped one, so flush loops survive the originating request
func (v *ViewportService) runCtx(fallback context.Context) context.Context {
	if v.ctx != nil {
		return v.ctx
	}
	return fallback
}

func (v *ViewportService) publish(ctx context.Context, t model.MessageType, sessionID, senderID string, payload any) {
	env, err := model.NewEnvelope(t, sessionID, senderID, v.clk.Now().UnixMilli(), payload)
	if err == nil {
		err = v.channel.Publish(ctx, env)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component":  "viewport",
			"session_id": sessionID,
			"type":       t,
		}).WithError(err).Warn("broadcast failed")
	}
}
