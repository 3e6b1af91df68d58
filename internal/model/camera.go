package model

// CameraState is the ephemeral viewport of the current leader.
// It is never persisted; followers interpolate toward it.
type CameraState struct {
	Position Vec3    `json:"position"`
	Target   Vec3    `json:"target"`
	Zoom     float64 `json:"zoom"`
	Rotation Vec3    `json:"rotation"`
	FOV      float64 `json:"fov,omitempty"`
}

// CursorState is a participant's pointer inside the scene view
type CursorState struct {
	X      float64 `json:"x" bson:"x"`
	Y      float64 `json:"y" bson:"y"`
	Target string  `json:"target,omitempty" bson:"target,omitempty"`
}
