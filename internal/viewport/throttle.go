package viewport

import (
	"context"
	"sync"
	"time"

	"scenesync/internal/clock"
)

const (
	// CameraInterval caps camera broadcasts at 5 Hz
	CameraInterval = 200 * time.Millisecond
	// CursorInterval caps cursor broadcasts at 10 Hz
	CursorInterval = 100 * time.Millisecond
)

// Throttle coalesces a stream of values down to at most one emit per
// interval. Excess offers inside a window replace the pending value, they
// are never queued, so the transport only ever sees the latest state.
type Throttle struct {
	mu         sync.Mutex
	clk        clock.Clock
	interval   time.Duration
	pending    any
	hasPending bool
	emit       func(v any)
}

// NewThrottle creates a throttle that hands coalesced values to emit
func NewThrottle(clk clock.Clock, interval time.Duration, emit func(v any)) *Throttle {
	return &Throttle{
		clk:      clk,
		interval: interval,
		emit:     emit,
	}
}

// Offer replaces the pending value; it never emits directly
func (t *Throttle) Offer(v any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = v
	t.hasPending = true
}

// Flush emits the pending value, if any. Called once per window.
func (t *Throttle) Flush() {
	t.mu.Lock()
	if !t.hasPending {
		t.mu.Unlock()
		return
	}
	v := t.pending
	t.pending = nil
	t.hasPending = false
	t.mu.Unlock()

	t.emit(v)
}

// Run flushes on the throttle interval until the context is cancelled
func (t *Throttle) Run(ctx context.Context) {
	ticker := t.clk.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			t.Flush()
		}
	}
}
