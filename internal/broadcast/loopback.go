package broadcast

import (
	"context"
	"sync"

	"scenesync/internal/model"
)

// Loopback is an in-process Channel for tests and single-instance runs.
// Delivery is synchronous and in publish order per sender, matching the
// ordering contract of the real channel.
type Loopback struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]Handler // session id -> subscriber id -> handler
}

// NewLoopback creates an empty in-process channel
func NewLoopback() *Loopback {
	return &Loopback{handlers: make(map[string]map[int]Handler)}
}

func (l *Loopback) Publish(_ context.Context, env model.Envelope) error {
	l.mu.Lock()
	subs := make([]Handler, 0, len(l.handlers[env.SessionID]))
	for _, h := range l.handlers[env.SessionID] {
		subs = append(subs, h)
	}
	l.mu.Unlock()

	for _, h := range subs {
		h(env)
	}
	return nil
}

func (l *Loopback) Subscribe(_ context.Context, sessionID string, h Handler) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handlers[sessionID] == nil {
		l.handlers[sessionID] = make(map[int]Handler)
	}
	id := l.nextID
	l.nextID++
	l.handlers[sessionID][id] = h

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.handlers[sessionID], id)
	}, nil
}
