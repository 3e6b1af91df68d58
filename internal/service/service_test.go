package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"scenesync/internal/broadcast"
	"scenesync/internal/cache"
	"scenesync/internal/clock"
	"scenesync/internal/conflict"
	"scenesync/internal/model"
	"scenesync/internal/presence"
	"scenesync/internal/state"
	"scenesync/internal/viewport"
)

type sessionDoc struct {
	session      model.Session
	participants []model.Participant
}

// memSessionRepo is an in-memory SessionRepository for tests
type memSessionRepo struct {
	mu       sync.Mutex
	docs     map[string]sessionDoc
	persists int
	fail     bool
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{docs: make(map[string]sessionDoc)}
}

func (r *memSessionRepo) Persist(_ context.Context, session model.Session, participants []model.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("repo unavailable")
	}
	r.persists++
	r.docs[session.ID] = sessionDoc{session, participants}
	return nil
}

func (r *memSessionRepo) Load(_ context.Context, sessionID string) (*model.Session, []model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[sessionID]
	if !ok {
		return nil, nil, nil
	}
	s := doc.session
	return &s, doc.participants, nil
}

func (r *memSessionRepo) FindByInviteCode(_ context.Context, code string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.session.InviteCode == code {
			s := doc.session
			return &s, nil
		}
	}
	return nil, nil
}

func (r *memSessionRepo) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, sessionID)
	return nil
}

// memAnnotationRepo is an in-memory AnnotationRepository for tests
type memAnnotationRepo struct {
	mu   sync.Mutex
	sets map[string][]model.Annotation
}

func newMemAnnotationRepo() *memAnnotationRepo {
	return &memAnnotationRepo{sets: make(map[string][]model.Annotation)}
}

func (r *memAnnotationRepo) PersistAll(_ context.Context, sessionID string, annotations []model.Annotation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[sessionID] = append([]model.Annotation(nil), annotations...)
	return nil
}

func (r *memAnnotationRepo) LoadBySession(_ context.Context, sessionID string) ([]model.Annotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Annotation(nil), r.sets[sessionID]...), nil
}

func (r *memAnnotationRepo) DeleteBySession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sets, sessionID)
	return nil
}

// memSessionCache is an in-memory SessionCache for tests
type memSessionCache struct {
	mu    sync.Mutex
	metas map[string]*model.SessionMeta
}

func newMemSessionCache() *memSessionCache {
	return &memSessionCache{metas: make(map[string]*model.SessionMeta)}
}

func (c *memSessionCache) Reserve(_ context.Context, inviteCode string, meta *model.SessionMeta) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.metas[inviteCode]; ok {
		return false, nil
	}
	m := *meta
	c.metas[inviteCode] = &m
	return true, nil
}

func (c *memSessionCache) GetMeta(_ context.Context, inviteCode string) (*model.SessionMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.metas[inviteCode]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (c *memSessionCache) Exists(_ context.Context, inviteCode string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.metas[inviteCode]
	return ok, nil
}

func (c *memSessionCache) Delete(_ context.Context, inviteCode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.metas, inviteCode)
	return nil
}

var _ cache.SessionCache = (*memSessionCache)(nil)

// failingChannel refuses every publish, simulating a dead transport
type failingChannel struct{}

func (failingChannel) Publish(context.Context, model.Envelope) error {
	return errors.New("connection reset")
}

func (failingChannel) Subscribe(context.Context, string, broadcast.Handler) (func(), error) {
	return func() {}, nil
}

// harness wires a full service stack over in-memory collaborators
type harness struct {
	clk         *clock.Fake
	store       *state.Store
	tracker     *presence.Tracker
	engine      *conflict.Engine
	channel     broadcast.Channel
	repo        *memSessionRepo
	annRepo     *memAnnotationRepo
	cache       *memSessionCache
	sessions    *SessionService
	annotations *AnnotationService
	viewports   *ViewportService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithChannel(t, broadcast.NewLoopback())
}

func newHarnessWithChannel(t *testing.T, channel broadcast.Channel) *harness {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := state.NewStore(0)
	tracker := presence.NewTracker(clk)
	engine := conflict.NewEngine(store, clk)
	repo := newMemSessionRepo()
	annRepo := newMemAnnotationRepo()
	sessionCache := newMemSessionCache()
	authSvc := NewAuthService()

	viewports := NewViewportService(store, viewport.NewCoordinator(), channel, clk)
	sessions := NewSessionService(store, repo, annRepo, sessionCache,
		tracker, engine, viewports, channel, authSvc, clk)
	annotations := NewAnnotationService(store, engine, channel, clk)
	tracker.OnTransition(sessions.PresenceObserver())

	return &harness{
		clk:         clk,
		store:       store,
		tracker:     tracker,
		engine:      engine,
		channel:     channel,
		repo:        repo,
		annRepo:     annRepo,
		cache:       sessionCache,
		sessions:    sessions,
		annotations: annotations,
		viewports:   viewports,
	}
}

// create makes a session owned by "alice" and returns it
func (h *harness) create(t *testing.T) *model.JoinResponse {
	t.Helper()
	resp, err := h.sessions.Create(context.Background(), "review", "1ABC", "alice", "Alice")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return resp
}
