package viewport

import (
	"sync"
	"time"

	"scenesync/internal/model"
)

// Interpolator smooths a follower's camera toward sparsely received leader
// states. Incoming states become interpolation targets; each tick the
// camera moves along a cubic ease-out curve instead of snapping, so motion
// stays visually smooth at only a few updates per second.
type Interpolator struct {
	mu       sync.Mutex
	interval time.Duration
	start    model.CameraState
	target   model.CameraState
	startAt  time.Time
	has      bool
}

// NewInterpolator creates an interpolator tuned to the broadcast interval
func NewInterpolator(interval time.Duration) *Interpolator {
	if interval <= 0 {
		interval = CameraInterval
	}
	return &Interpolator{interval: interval}
}

// SetTarget stores a newly received leader state as the interpolation
// target. The camera's current eased position becomes the new start point,
// so a fresh update mid-flight never causes a jump.
func (i *Interpolator) SetTarget(s model.CameraState, now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.has {
		i.start = s
		i.target = s
		i.startAt = now
		i.has = true
		return
	}
	i.start = i.at(now)
	i.target = s
	i.startAt = now
}

// At returns the eased camera position for the given instant
func (i *Interpolator) At(now time.Time) (model.CameraState, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.has {
		return model.CameraState{}, false
	}
	return i.at(now), true
}

// Target returns the most recently received leader state
func (i *Interpolator) Target() (model.CameraState, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.target, i.has
}

// at must be called with the lock held
func (i *Interpolator) at(now time.Time) model.CameraState {
	progress := float64(now.Sub(i.startAt)) / float64(i.interval)
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	// cubic ease-out: fast at first, settling onto the target
	ease := 1 - (1-progress)*(1-progress)*(1-progress)
	return model.CameraState{
		Position: lerpVec3(i.start.Position, i.target.Position, ease),
		Target:   lerpVec3(i.start.Target, i.target.Target, ease),
		Zoom:     lerp(i.start.Zoom, i.target.Zoom, ease),
		Rotation: lerpVec3(i.start.Rotation, i.target.Rotation, ease),
		FOV:      lerp(i.start.FOV, i.target.FOV, ease),
	}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func lerpVec3(a, b model.Vec3, t float64) model.Vec3 {
	return model.Vec3{
		X: lerp(a.X, b.X, t),
		Y: lerp(a.Y, b.Y, t),
		Z: lerp(a.Z, b.Z, t),
	}
}
