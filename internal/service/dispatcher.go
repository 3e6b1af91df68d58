package service

import (
	"github.com/sirupsen/logrus"

	"scenesync/internal/clock"
	"scenesync/internal/model"
	"scenesync/internal/presence"
	"scenesync/internal/state"
)

// Dispatcher applies envelopes delivered by the broadcast channel to the
// local projection. Every message type is handled explicitly; an unknown
// type is logged and dropped rather than half-applied.
type Dispatcher struct {
	store       *state.Store
	annotations *AnnotationService
	tracker     *presence.Tracker
	clk         clock.Clock
}

// NewDispatcher creates a dispatcher
func NewDispatcher(store *state.Store, annotations *AnnotationService, tracker *presence.Tracker, clk clock.Clock) *Dispatcher {
	return &Dispatcher{store: store, annotations: annotations, tracker: tracker, clk: clk}
}

// Apply folds one envelope into local state. Application is idempotent:
// the channel may deliver this instance's own publishes back to it.
func (d *Dispatcher) Apply(env model.Envelope) {
	payload, err := env.Decode()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component":  "dispatch",
			"session_id": env.SessionID,
			"type":       env.Type,
		}).WithError(err).Warn("dropping undecodable message")
		return
	}

	switch p := payload.(type) {
	case model.CursorMovePayload:
		if part, ok := d.store.Participant(env.SessionID, p.UserID); ok {
			cursor := p.Cursor
			part.Cursor = &cursor
			d.store.UpsertParticipant(env.SessionID, part)
		}

	case model.AnnotationAddPayload:
		d.annotations.HandleRemoteAdd(env.SessionID, env.SenderID, p)

	case model.AnnotationEditPayload:
		d.annotations.HandleRemoteEdit(env.SessionID, env.SenderID, p)

	case model.AnnotationDeletePayload:
		d.annotations.HandleRemoteDelete(env.SessionID, env.SenderID, p, env.Timestamp)

	case model.CameraUpdatePayload:
		d.store.SetCamera(env.SessionID, p.State)

	case model.UserJoinPayload:
		d.store.UpsertParticipant(env.SessionID, p.Participant)
		d.tracker.Track(env.SessionID, p.Participant.ID)

	case model.UserUpdatePayload:
		d.store.UpsertParticipant(env.SessionID, p.Participant)

	case model.UserLeavePayload:
		d.store.RemoveParticipant(env.SessionID, p.UserID)
		d.tracker.Forget(env.SessionID, p.UserID)

	case model.ActivityPayload:
		// This instance appends before publishing, so its own echo is a
		// duplicate by event id.
		if !d.store.HasActivity(env.SessionID, p.Event.ID) {
			d.store.AppendActivity(env.SessionID, p.Event)
		}

	case model.SessionUpdatePayload:
		if session, ok := d.store.Session(env.SessionID); ok {
			session.Settings = p.Settings
			d.store.PutSession(session)
		}

	case model.HeartbeatPayload:
		d.tracker.Heartbeat(env.SessionID, p.UserID)

	default:
		logrus.WithFields(logrus.Fields{
			"component": "dispatch",
			"type":      env.Type,
		}).Warn("unhandled message type")
	}
}
