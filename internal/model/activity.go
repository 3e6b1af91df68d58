package model

import "time"

// ActivityType is the closed set of loggable domain events
type ActivityType string

const (
	ActivityJoin             ActivityType = "join"
	ActivityLeave            ActivityType = "leave"
	ActivityStructureChange  ActivityType = "structure-change"
	ActivityAnnotationAdd    ActivityType = "annotation-add"
	ActivityAnnotationEdit   ActivityType = "annotation-edit"
	ActivityAnnotationDelete ActivityType = "annotation-delete"
	ActivityCameraMove       ActivityType = "camera-move"
	ActivitySimulationStart  ActivityType = "simulation-start"
	ActivitySimulationStop   ActivityType = "simulation-stop"
	ActivityRoleChange       ActivityType = "role-change"
	ActivitySessionCreated   ActivityType = "session-created"
)

// ActivityEvent is one entry in a session's bounded activity feed
type ActivityEvent struct {
	ID        string         `json:"id" bson:"_id"`
	Type      ActivityType   `json:"type" bson:"type"`
	ActorID   string         `json:"actorId" bson:"actorId"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
	Message   string         `json:"message" bson:"message"`
	Payload   map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
}
