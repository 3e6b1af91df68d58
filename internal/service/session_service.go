package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"scenesync/internal/broadcast"
	"scenesync/internal/cache"
	"scenesync/internal/clock"
	"scenesync/internal/conflict"
	"scenesync/internal/model"
	"scenesync/internal/presence"
	"scenesync/internal/repository"
	"scenesync/internal/state"
)

const (
	// SessionTTL bounds every session's lifetime
	SessionTTL = 24 * time.Hour
	// ExpireSweepInterval is the cadence of the background expiry sweep;
	// expiry is also checked lazily on every access
	ExpireSweepInterval = time.Minute
	// PersistInterval is the cadence of opportunistic persistence
	PersistInterval = 30 * time.Second
)

// participantColors is the palette for UI disambiguation. Colors are
// assigned first-unused so they stay unique within a session.
var participantColors = []string{
	"#E63946", "#457B9D", "#2A9D8F", "#E9C46A", "#9B5DE5", "#F4845F",
	"#00B4D8", "#84A98C", "#D62246", "#5E60CE", "#FF70A6", "#6A994E",
}

// SessionService owns session lifecycle: create, join, leave, roles,
// kicks, expiry and opportunistic persistence.
type SessionService struct {
	store       *state.Store
	sessionRepo repository.SessionRepository
	annRepo     repository.AnnotationRepository
	sessions    cache.SessionCache
	tracker     *presence.Tracker
	engine      *conflict.Engine
	viewports   *ViewportService
	channel     broadcast.Channel
	authSvc     *AuthService
	clk         clock.Clock
}

// NewSessionService creates a session service
func NewSessionService(
	store *state.Store,
	sessionRepo repository.SessionRepository,
	annRepo repository.AnnotationRepository,
	sessions cache.SessionCache,
	tracker *presence.Tracker,
	engine *conflict.Engine,
	viewports *ViewportService,
	channel broadcast.Channel,
	authSvc *AuthService,
	clk clock.Clock,
) *SessionService {
	return &SessionService{
		store:       store,
		sessionRepo: sessionRepo,
		annRepo:     annRepo,
		sessions:    sessions,
		tracker:     tracker,
		engine:      engine,
		viewports:   viewports,
		channel:     channel,
		authSvc:     authSvc,
		clk:         clk,
	}
}

// Create starts a new session with the caller as its owner
func (s *SessionService) Create(ctx context.Context, name, structureID, ownerID, ownerName string) (*model.JoinResponse, error) {
	now := s.clk.Now()
	sessionID := "s_" + uuid.New().String()[:8]
	meta := &model.SessionMeta{
		SessionID: sessionID,
		OwnerID:   ownerID,
		Active:    true,
		ExpiresAt: now.Add(SessionTTL),
	}

	// The code is claimed in the cache before the session exists anywhere
	// else, so no two active sessions can ever share one.
	code, err := s.generateInviteCode(ctx, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite code: %w", err)
	}

	session := model.Session{
		ID:          sessionID,
		Name:        name,
		OwnerID:     ownerID,
		StructureID: structureID,
		InviteCode:  code,
		Settings:    model.DefaultSettings(),
		Active:      true,
		CreatedAt:   now,
		ExpiresAt:   now.Add(SessionTTL),
	}
	s.store.PutSession(session)

	owner := model.Participant{
		ID:           ownerID,
		SessionID:    session.ID,
		Name:         ownerName,
		Color:        participantColors[0],
		Role:         model.RoleOwner,
		Status:       model.PresenceActive,
		LastActiveAt: now,
		JoinedAt:     now,
	}
	s.store.UpsertParticipant(session.ID, owner)
	s.tracker.Track(session.ID, ownerID)

	token, err := s.authSvc.GenerateParticipantToken(session.ID, ownerID, model.RoleOwner)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	logActivity(ctx, s.store, s.channel, session.ID,
		newActivity(now, model.ActivitySessionCreated, ownerID, ownerName+" created the session", nil))

	// Best effort: the live session must not depend on the durable store.
	if err := s.sessionRepo.Persist(ctx, session, []model.Participant{owner}); err != nil {
		logrus.WithError(err).WithField("session_id", session.ID).Warn("initial session persist failed")
	}

	return &model.JoinResponse{Participant: owner, Token: token, Session: session}, nil
}

// Join adds a user to a session addressed by id or invite code
func (s *SessionService) Join(ctx context.Context, idOrCode, userID, userName string) (*model.JoinResponse, error) {
	session, err := s.resolve(ctx, idOrCode)
	if err != nil {
		return nil, err
	}
	if err := s.checkActive(session); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	existing, rejoining := s.store.Participant(session.ID, userID)
	if !rejoining && s.store.ParticipantCount(session.ID) >= session.Settings.MaxParticipants {
		return nil, ErrSessionFull
	}

	p := model.Participant{
		ID:           userID,
		SessionID:    session.ID,
		Name:         userName,
		Color:        s.assignColor(session.ID),
		Role:         model.RoleViewer,
		Status:       model.PresenceActive,
		LastActiveAt: now,
		JoinedAt:     now,
	}
	if rejoining {
		p.Color = existing.Color
		p.Role = existing.Role
		p.JoinedAt = existing.JoinedAt
	}
	s.store.UpsertParticipant(session.ID, p)
	s.tracker.Track(session.ID, userID)

	token, err := s.authSvc.GenerateParticipantToken(session.ID, userID, p.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.publish(ctx, model.MsgUserJoin, session.ID, userID, model.UserJoinPayload{Participant: p})
	if !rejoining {
		logActivity(ctx, s.store, s.channel, session.ID,
			newActivity(now, model.ActivityJoin, userID, userName+" joined the session", nil))
	}

	return &model.JoinResponse{Participant: p, Token: token, Session: *session}, nil
}

// Leave removes a participant. Pending optimistic updates by the user are
// discarded and camera leadership, if held, is released.
func (s *SessionService) Leave(ctx context.Context, sessionID, userID string) error {
	session, err := s.active(sessionID)
	if err != nil {
		return err
	}
	p, ok := s.store.Participant(sessionID, userID)
	if !ok {
		return ErrNotFound
	}
	s.removeParticipant(ctx, session, p, "left")
	return nil
}

// SetRole changes a participant's role. Owner-only; the owner cannot
// demote themselves, and ownership itself is never reassigned here.
func (s *SessionService) SetRole(ctx context.Context, sessionID, actorID, targetID string, newRole model.Role) error {
	_, err := s.active(sessionID)
	if err != nil {
		return err
	}
	actor, ok := s.store.Participant(sessionID, actorID)
	if !ok {
		return ErrNotFound
	}
	if !actor.Role.CanModerate() {
		return ErrPermissionDenied
	}
	if actorID == targetID {
		// Demoting the only owner would orphan the session.
		return ErrPermissionDenied
	}
	if newRole == model.RoleOwner {
		// Exactly one owner per session; succession is a manual decision.
		return ErrPermissionDenied
	}
	target, ok := s.store.Participant(sessionID, targetID)
	if !ok {
		return ErrNotFound
	}

	target.Role = newRole
	s.store.UpsertParticipant(sessionID, target)

	now := s.clk.Now()
	s.publish(ctx, model.MsgUserUpdate, sessionID, actorID, model.UserUpdatePayload{Participant: target})
	logActivity(ctx, s.store, s.channel, sessionID,
		newActivity(now, model.ActivityRoleChange, actorID,
			fmt.Sprintf("%s is now a %s", target.Name, newRole),
			map[string]any{"targetId": targetID, "role": string(newRole)}))
	return nil
}

// Kick forcibly removes a participant. Owner-only.
func (s *SessionService) Kick(ctx context.Context, sessionID, actorID, targetID string) error {
	session, err := s.active(sessionID)
	if err != nil {
		return err
	}
	actor, ok := s.store.Participant(sessionID, actorID)
	if !ok {
		return ErrNotFound
	}
	if !actor.Role.CanModerate() {
		return ErrPermissionDenied
	}
	target, ok := s.store.Participant(sessionID, targetID)
	if !ok {
		return ErrNotFound
	}
	s.removeParticipant(ctx, session, target, "kicked")
	return nil
}

// UpdateSettings replaces the session settings. Owner-only. Leadership
// fields are managed by the viewport synchronizer and preserved here.
func (s *SessionService) UpdateSettings(ctx context.Context, sessionID, actorID string, settings model.SessionSettings) error {
	session, err := s.active(sessionID)
	if err != nil {
		return err
	}
	actor, ok := s.store.Participant(sessionID, actorID)
	if !ok {
		return ErrNotFound
	}
	if !actor.Role.CanEditSettings() {
		return ErrPermissionDenied
	}

	settings.LeaderID = session.Settings.LeaderID
	settings.FollowMode = session.Settings.FollowMode
	session.Settings = settings
	s.store.PutSession(*session)

	s.publish(ctx, model.MsgSessionUpdate, sessionID, actorID, model.SessionUpdatePayload{Settings: settings})
	return nil
}

// Heartbeat records liveness for a participant
func (s *SessionService) Heartbeat(ctx context.Context, sessionID, userID string) {
	s.tracker.Heartbeat(sessionID, userID)
	if p, ok := s.store.Participant(sessionID, userID); ok {
		p.LastActiveAt = s.clk.Now()
		p.Status = model.PresenceActive
		s.store.UpsertParticipant(sessionID, p)
	}
	s.publish(ctx, model.MsgHeartbeat, sessionID, userID, model.HeartbeatPayload{UserID: userID})
}

// Snapshot returns a full copy of the session projection for the host layer
func (s *SessionService) Snapshot(sessionID string) (state.Snapshot, error) {
	if _, err := s.active(sessionID); err != nil {
		return state.Snapshot{}, err
	}
	snap, ok := s.store.SnapshotSession(sessionID)
	if !ok {
		return state.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// PresenceObserver returns the transition hook wired into the tracker.
// Offline participants are removed as if they had left; idle and active
// transitions are visible state changes announced to everyone.
func (s *SessionService) PresenceObserver() presence.TransitionFunc {
	return func(sessionID, userID string, from, to model.PresenceStatus) {
		ctx := context.Background()
		if to == model.PresenceOffline {
			session, ok := s.store.Session(sessionID)
			if !ok {
				return
			}
			if p, ok := s.store.Participant(sessionID, userID); ok {
				logrus.WithFields(logrus.Fields{
					"component":  "session",
					"session_id": sessionID,
					"user_id":    userID,
				}).Info("participant timed out")
				s.removeParticipant(ctx, &session, p, "timeout")
			}
			return
		}
		if p, ok := s.store.Participant(sessionID, userID); ok {
			p.Status = to
			s.store.UpsertParticipant(sessionID, p)
			s.publish(ctx, model.MsgUserUpdate, sessionID, userID, model.UserUpdatePayload{Participant: p})
		}
	}
}

// ExpireSweep deactivates sessions whose TTL elapsed
func (s *SessionService) ExpireSweep(ctx context.Context) {
	now := s.clk.Now()
	for _, id := range s.store.SessionIDs() {
		session, ok := s.store.Session(id)
		if !ok || !session.Active || !session.Expired(now) {
			continue
		}
		s.deactivate(ctx, session)
	}
}

// RunExpireSweep sweeps for expired sessions on a fixed cadence
func (s *SessionService) RunExpireSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = ExpireSweepInterval
	}
	ticker := s.clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.ExpireSweep(ctx)
		}
	}
}

// RunPersistLoop opportunistically writes live sessions to the durable
// store. Failures are logged and retried next round; they never affect
// the live session.
func (s *SessionService) RunPersistLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = PersistInterval
	}
	ticker := s.clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.PersistAll(ctx)
		}
	}
}

// PersistAll writes every active session's projection to the durable store
func (s *SessionService) PersistAll(ctx context.Context) {
	log := logrus.WithField("component", "persist")
	for _, id := range s.store.SessionIDs() {
		snap, ok := s.store.SnapshotSession(id)
		if !ok || !snap.Session.Active {
			continue
		}
		if err := s.sessionRepo.Persist(ctx, snap.Session, snap.Participants); err != nil {
			log.WithError(err).WithField("session_id", id).Warn("session persist failed")
			continue
		}
		if err := s.annRepo.PersistAll(ctx, id, snap.Annotations); err != nil {
			log.WithError(err).WithField("session_id", id).Warn("annotation persist failed")
		}
	}
}

// --- internals ---

// resolve finds a session by id or invite code, rehydrating the in-memory
// projection from the durable store when this instance has not seen it yet
func (s *SessionService) resolve(ctx context.Context, idOrCode string) (*model.Session, error) {
	if session, ok := s.store.Session(idOrCode); ok {
		return &session, nil
	}

	// Invite code path: cache first, durable store as fallback.
	if meta, err := s.sessions.GetMeta(ctx, idOrCode); err == nil && meta != nil {
		if session, ok := s.store.Session(meta.SessionID); ok {
			return &session, nil
		}
		return s.rehydrate(ctx, meta.SessionID)
	}
	if session, err := s.sessionRepo.FindByInviteCode(ctx, idOrCode); err == nil && session != nil {
		return s.rehydrate(ctx, session.ID)
	}

	// Session id path against the durable store.
	return s.rehydrate(ctx, idOrCode)
}

// rehydrate loads a persisted session back into the live projection
func (s *SessionService) rehydrate(ctx context.Context, sessionID string) (*model.Session, error) {
	session, participants, err := s.sessionRepo.Load(ctx, sessionID)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Warn("durable store load failed")
		return nil, ErrNotFound
	}
	if session == nil {
		return nil, ErrNotFound
	}

	s.store.PutSession(*session)
	for _, p := range participants {
		// Persisted participants reconnect on their own; until then they
		// are offline, not silently active.
		p.Status = model.PresenceOffline
		s.store.UpsertParticipant(session.ID, p)
	}
	if annotations, err := s.annRepo.LoadBySession(ctx, sessionID); err == nil {
		for _, a := range annotations {
			s.store.UpsertAnnotation(a)
		}
	} else {
		logrus.WithError(err).WithField("session_id", sessionID).Warn("annotation load failed")
	}

	logrus.WithFields(logrus.Fields{
		"component":  "session",
		"session_id": sessionID,
	}).Info("session rehydrated from durable store")
	return session, nil
}

// active returns the session if it exists and has not expired. Expiry is
// lazy: the first access past the deadline deactivates the session.
func (s *SessionService) active(sessionID string) (*model.Session, error) {
	session, ok := s.store.Session(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	if err := s.checkActive(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionService) checkActive(session *model.Session) error {
	if session.Active && session.Expired(s.clk.Now()) {
		s.deactivate(context.Background(), *session)
		session.Active = false
	}
	if !session.Active {
		return ErrSessionExpired
	}
	return nil
}

func (s *SessionService) deactivate(ctx context.Context, session model.Session) {
	session.Active = false
	s.store.PutSession(session)
	s.tracker.ForgetSession(session.ID)
	s.engine.DiscardSession(session.ID)
	s.viewports.DropSession(session.ID)
	if err := s.sessions.Delete(ctx, session.InviteCode); err != nil {
		logrus.WithError(err).WithField("session_id", session.ID).Warn("failed to drop invite code mapping")
	}
	logrus.WithFields(logrus.Fields{
		"component":  "session",
		"session_id": session.ID,
	}).Info("session expired")
}

func (s *SessionService) removeParticipant(ctx context.Context, session *model.Session, p model.Participant, reason string) {
	// Pending optimistic updates are discarded outright: there is no local
	// view left to roll back into.
	s.engine.DiscardUser(session.ID, p.ID)
	s.tracker.Forget(session.ID, p.ID)
	s.viewports.HandleDeparture(ctx, session.ID, p.ID)
	s.store.RemoveParticipant(session.ID, p.ID)

	if p.ID == session.OwnerID {
		// No succession policy: the session stays active but is flagged
		// for manual moderation.
		session.NeedsModeration = true
		s.store.PutSession(*session)
	}

	now := s.clk.Now()
	s.publish(ctx, model.MsgUserLeave, session.ID, p.ID, model.UserLeavePayload{UserID: p.ID, Reason: reason})
	msg := p.Name + " left the session"
	if reason == "kicked" {
		msg = p.Name + " was removed from the session"
	} else if reason == "timeout" {
		msg = p.Name + " timed out"
	}
	logActivity(ctx, s.store, s.channel, session.ID,
		newActivity(now, model.ActivityLeave, p.ID, msg, map[string]any{"reason": reason}))
}

func (s *SessionService) publish(ctx context.Context, t model.MessageType, sessionID, senderID string, payload any) {
	env, err := model.NewEnvelope(t, sessionID, senderID, s.clk.Now().UnixMilli(), payload)
	if err == nil {
		err = s.channel.Publish(ctx, env)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component":  "session",
			"session_id": sessionID,
			"type":       t,
		}).WithError(err).Warn("broadcast failed")
	}
}

// assignColor picks the first palette color unused in the session. Once
// the palette is exhausted it derives further colors, so they stay unique
// even when the owner raises the participant limit past the palette size.
func (s *SessionService) assignColor(sessionID string) string {
	used := make(map[string]bool)
	for _, p := range s.store.Participants(sessionID) {
		used[p.Color] = true
	}
	for _, c := range participantColors {
		if !used[c] {
			return c
		}
	}
	for i := 0; ; i++ {
		if c := derivedColor(i); !used[c] {
			return c
		}
	}
}

// derivedColor extends the palette deterministically. Successive indices
// step the hue wheel by a golden-angle-like increment, with a lightness
// band change on each full lap, so neighboring participants stay visually
// distinct.
func derivedColor(i int) string {
	hue := float64((i*137)%360) / 360
	light := 0.40 + 0.08*float64((i/360)%4)
	r, g, b := hslToRGB(hue, 0.65, light)
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h*6, 2)-1))
	m := l - c/2
	var r, g, b float64
	switch {
	case h < 1.0/6:
		r, g, b = c, x, 0
	case h < 2.0/6:
		r, g, b = x, c, 0
	case h < 3.0/6:
		r, g, b = 0, c, x
	case h < 4.0/6:
		r, g, b = 0, x, c
	case h < 5.0/6:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return uint8((r + m) * 255), uint8((g + m) * 255), uint8((b + m) * 255)
}

// inviteCodeAlphabet spells codes in uppercase letters and digits only
const inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// InviteCodeLength is the fixed length of session invite codes
const InviteCodeLength = 8

// generateInviteCode draws 8-char uppercase alphanumeric codes until one
// can be reserved. Losing the reservation race triggers a redraw, not a
// failure.
func (s *SessionService) generateInviteCode(ctx context.Context, meta *model.SessionMeta) (string, error) {
	for attempts := 0; attempts < 10; attempts++ {
		b := make([]byte, InviteCodeLength)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		code := make([]byte, InviteCodeLength)
		for i := range code {
			code[i] = inviteCodeAlphabet[int(b[i])%len(inviteCodeAlphabet)]
		}
		codeStr := string(code)

		reserved, err := s.sessions.Reserve(ctx, codeStr, meta)
		if err != nil {
			return "", err
		}
		if reserved {
			return codeStr, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique invite code")
}
