package model

import (
	"encoding/json"
	"fmt"
)

// MessageType defines the kind of a broadcast message
type MessageType string

const (
	MsgCursorMove       MessageType = "cursor-move"
	MsgAnnotationAdd    MessageType = "annotation-add"
	MsgAnnotationEdit   MessageType = "annotation-edit"
	MsgAnnotationDelete MessageType = "annotation-delete"
	MsgCameraUpdate     MessageType = "camera-update"
	MsgUserJoin         MessageType = "user-join"
	MsgUserLeave        MessageType = "user-leave"
	MsgUserUpdate       MessageType = "user-update"
	MsgActivity         MessageType = "activity"
	MsgSessionUpdate    MessageType = "session-update"
	MsgHeartbeat        MessageType = "heartbeat"
)

// Envelope is the wire format for every broadcast message
type Envelope struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId"`
	SenderID  string          `json:"senderId"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds at send time
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// CursorMovePayload carries a participant's pointer position
type CursorMovePayload struct {
	UserID string      `json:"userId"`
	Cursor CursorState `json:"cursor"`
}

// AnnotationAddPayload carries a complete new annotation
type AnnotationAddPayload struct {
	Annotation Annotation `json:"annotation"`
}

// AnnotationEditPayload carries a partial edit to an existing annotation
type AnnotationEditPayload struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Patch     AnnotationPatch `json:"patch"`
	Timestamp int64           `json:"timestamp"`
}

// AnnotationDeletePayload removes an annotation
type AnnotationDeletePayload struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

// CameraUpdatePayload carries the leader's viewport state
type CameraUpdatePayload struct {
	UserID string      `json:"userId"`
	State  CameraState `json:"state"`
}

// UserJoinPayload announces a new participant
type UserJoinPayload struct {
	Participant Participant `json:"participant"`
}

// UserLeavePayload announces a departure, voluntary or enforced
type UserLeavePayload struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"` // "left", "kicked", "timeout"
}

// UserUpdatePayload carries presence or role changes for a participant
type UserUpdatePayload struct {
	Participant Participant `json:"participant"`
}

// ActivityPayload carries one activity feed entry
type ActivityPayload struct {
	Event ActivityEvent `json:"event"`
}

// SessionUpdatePayload carries a settings change
type SessionUpdatePayload struct {
	Settings SessionSettings `json:"settings"`
}

// HeartbeatPayload keeps a participant's presence alive
type HeartbeatPayload struct {
	UserID string `json:"userId"`
}

// NewEnvelope wraps a typed payload into a wire envelope
func NewEnvelope(t MessageType, sessionID, senderID string, ts int64, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{
		Type:      t,
		SessionID: sessionID,
		SenderID:  senderID,
		Timestamp: ts,
		Payload:   data,
	}, nil
}

// Decode returns the typed payload for the envelope's message kind.
// The switch is exhaustive over MessageType; an unknown kind is an error,
// never silently ignored.
func (e *Envelope) Decode() (any, error) {
	switch e.Type {
	case MsgCursorMove:
		var p CursorMovePayload
		return p, json.Unmarshal(e.Payload, &p)
	case MsgAnnotationAdd:
		var p AnnotationAddPayload
		return p, json.Unmarshal(e.Payload, &p)
	case MsgAnnotationEdit:
		var p AnnotationEditPayload
		return p, json.Unmarshal(e.Payload, &p)
	case MsgAnnotationDelete:
		var p AnnotationDeletePayload
		return p, json.Unmarshal(e.Payload, &p)
	case MsgCameraUpdate:
		var p CameraUpdatePayload
		return p, json.Unmarshal(e.Payload, &p)
	case MsgUserJoin:
		var p UserJoinPayload
		return p, json.Unmarshal(e.Payload, &p)
	case MsgUserLeave:
		var p UserLeavePayload
		return p, json.Unmarshal(e.Payload, &p)
	case MsgUserUpdate:
		var p UserUpdatePayload
		return p, json.Unmarshal(e.Payload, &p)
	case MsgActivity:
		var p ActivityPayload
		return p, json.Unmarshal(e.Payload, &p)
	case MsgSessionUpdate:
		var p SessionUpdatePayload
		return p, json.Unmarshal(e.Payload, &p)
	case MsgHeartbeat:
		var p HeartbeatPayload
		return p, json.Unmarshal(e.Payload, &p)
	default:
		return nil, fmt.Errorf("unknown message type %q", e.Type)
	}
}
