// Package presence infers participant connectivity from heartbeat recency.
// There is no reliable disconnect signal; a participant is offline only
// once it has gone quiet past the offline threshold.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"scenesync/internal/clock"
	"scenesync/internal/model"
)

const (
	// DefaultHeartbeatInterval is how often clients are expected to ping
	DefaultHeartbeatInterval = 15 * time.Second
	// DefaultIdleAfter marks a participant idle after one missed heartbeat
	DefaultIdleAfter = 15 * time.Second
	// DefaultOfflineAfter marks a participant offline after two missed heartbeats
	DefaultOfflineAfter = 30 * time.Second
	// DefaultSweepInterval is the cadence of the periodic sweep
	DefaultSweepInterval = 5 * time.Second
)

// TransitionFunc observes every status change. It runs outside the tracker
// lock, so implementations may call back into the tracker.
type TransitionFunc func(sessionID, userID string, from, to model.PresenceStatus)

type entry struct {
	status       model.PresenceStatus
	lastActivity time.Time
}

// Tracker answers "is this participant still connected?" per session
type Tracker struct {
	mu           sync.Mutex
	clk          clock.Clock
	idleAfter    time.Duration
	offlineAfter time.Duration
	sessions     map[string]map[string]*entry
	onTransition TransitionFunc
}

// NewTracker creates a tracker with the default thresholds
func NewTracker(clk clock.Clock) *Tracker {
	return &Tracker{
		clk:          clk,
		idleAfter:    DefaultIdleAfter,
		offlineAfter: DefaultOfflineAfter,
		sessions:     make(map[string]map[string]*entry),
	}
}

// SetThresholds overrides the idle and offline thresholds
func (t *Tracker) SetThresholds(idleAfter, offlineAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.idleAfter = idleAfter
	t.offlineAfter = offlineAfter
}

// OnTransition registers the observer notified on every status change
func (t *Tracker) OnTransition(fn TransitionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTransition = fn
}

// Track starts following a participant, initially active
func (t *Tracker) Track(sessionID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.sessions[sessionID]
	if !ok {
		users = make(map[string]*entry)
		t.sessions[sessionID] = users
	}
	users[userID] = &entry{
		status:       model.PresenceActive,
		lastActivity: t.clk.Now(),
	}
}

// Heartbeat records activity and revives idle or offline participants.
// A heartbeat from an untracked participant is ignored; joining is what
// starts tracking.
func (t *Tracker) Heartbeat(sessionID, userID string) {
	t.mu.Lock()
	e, ok := t.lookup(sessionID, userID)
	if !ok {
		t.mu.Unlock()
		return
	}
	e.lastActivity = t.clk.Now()
	from := e.status
	if from != model.PresenceActive {
		e.status = model.PresenceActive
	}
	fn := t.onTransition
	t.mu.Unlock()

	if from != model.PresenceActive && fn != nil {
		fn(sessionID, userID, from, model.PresenceActive)
	}
}

// Status returns the current presence status for a participant
func (t *Tracker) Status(sessionID, userID string) (model.PresenceStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.lookup(sessionID, userID)
	if !ok {
		return "", false
	}
	return e.status, true
}

// Forget stops tracking one participant
func (t *Tracker) Forget(sessionID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if users, ok := t.sessions[sessionID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(t.sessions, sessionID)
		}
	}
}

// ForgetSession stops tracking everyone in a session
func (t *Tracker) ForgetSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}

type transition struct {
	sessionID string
	userID    string
	from, to  model.PresenceStatus
}

// Sweep re-evaluates every tracked participant against the thresholds.
// A missed heartbeat is not an error; only crossing a threshold changes
// status, and every change is reported through the transition observer.
func (t *Tracker) Sweep() {
	now := t.clk.Now()

	t.mu.Lock()
	var changes []transition
	for sessionID, users := range t.sessions {
		for userID, e := range users {
			quiet := now.Sub(e.lastActivity)
			next := e.status
			switch {
			case quiet > t.offlineAfter:
				next = model.PresenceOffline
			case quiet > t.idleAfter:
				next = model.PresenceIdle
			}
			if next != e.status {
				changes = append(changes, transition{sessionID, userID, e.status, next})
				e.status = next
			}
		}
	}
	fn := t.onTransition
	t.mu.Unlock()

	if fn == nil {
		return
	}
	for _, c := range changes {
		fn(c.sessionID, c.userID, c.from, c.to)
	}
}

// Run sweeps on a fixed cadence until the context is cancelled. Stale
// participants must be detected even when no inbound traffic arrives, so
// this runs off a ticker rather than on demand.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	log := logrus.WithField("component", "presence")
	ticker := t.clk.NewTicker(interval)
	defer ticker.Stop()
	log.WithField("interval", interval).Info("presence sweeper running")

	for {
		select {
		case <-ctx.Done():
			log.Info("presence sweeper stopped")
			return
		case <-ticker.C():
			t.Sweep()
		}
	}
}

// lookup must be called with the lock held
func (t *Tracker) lookup(sessionID, userID string) (*entry, bool) {
	users, ok := t.sessions[sessionID]
	if !ok {
		return nil, false
	}
	e, ok := users[userID]
	return e, ok
}
