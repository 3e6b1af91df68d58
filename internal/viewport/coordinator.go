// Package viewport coordinates leader-follower camera sharing: who leads,
// how often camera and cursor traffic leaves the engine, and how followers
// smooth the sparse updates they receive.
package viewport

import (
	"errors"
	"sync"
)

var (
	// ErrControlHeld is returned when another participant already leads
	ErrControlHeld = errors.New("camera control is held by another participant")
	// ErrNotLeader is returned when a non-leader tries a leader-only action
	ErrNotLeader = errors.New("not the camera leader")
)

// Coordinator tracks the per-session leadership state machine:
// no leader, leader(user), or following(user).
type Coordinator struct {
	mu      sync.Mutex
	leaders map[string]string // session id -> leader user id
}

// NewCoordinator creates an empty coordinator
func NewCoordinator() *Coordinator {
	return &Coordinator{leaders: make(map[string]string)}
}

// RequestControl grants leadership when no leader is active or the
// requester already leads. Permission and settings checks belong to the
// caller; this is only the state machine.
func (c *Coordinator) RequestControl(sessionID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.leaders[sessionID]
	if ok && current != userID {
		return ErrControlHeld
	}
	c.leaders[sessionID] = userID
	return nil
}

// ReleaseControl returns the session to the no-leader state. Only the
// current leader may release.
func (c *Coordinator) ReleaseControl(sessionID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.leaders[sessionID]
	if !ok || current != userID {
		return ErrNotLeader
	}
	delete(c.leaders, sessionID)
	return nil
}

// Leader returns the current leader, if any
func (c *Coordinator) Leader(sessionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	leader, ok := c.leaders[sessionID]
	return leader, ok
}

// IsLeader reports whether the user currently leads the session
func (c *Coordinator) IsLeader(sessionID, userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaders[sessionID] == userID
}

// ClearIfLeader drops leadership when the given user holds it, returning
// true if it did. Used when a leader leaves, is kicked, or goes offline.
func (c *Coordinator) ClearIfLeader(sessionID, userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leaders[sessionID] == userID {
		delete(c.leaders, sessionID)
		return true
	}
	return false
}

// DropSession forgets leadership state for a session
func (c *Coordinator) DropSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.leaders, sessionID)
}
