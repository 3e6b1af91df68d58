package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"scenesync/internal/broadcast"
	"scenesync/internal/model"
	"scenesync/internal/state"
)

// newActivity builds one activity feed entry
func newActivity(now time.Time, t model.ActivityType, actorID, message string, payload map[string]any) model.ActivityEvent {
	return model.ActivityEvent{
		ID:        "e_" + uuid.New().String()[:8],
		Type:      t,
		ActorID:   actorID,
		Timestamp: now,
		Message:   message,
		Payload:   payload,
	}
}

// logActivity appends an event to the session feed and announces it on the
// broadcast channel. The feed append is authoritative; a failed broadcast
// of the feed entry itself is logged and dropped, never surfaced.
func logActivity(ctx context.Context, store *state.Store, ch broadcast.Channel, sessionID string, ev model.ActivityEvent) {
	store.AppendActivity(sessionID, ev)

	env, err := model.NewEnvelope(model.MsgActivity, sessionID, ev.ActorID, ev.Timestamp.UnixMilli(), model.ActivityPayload{Event: ev})
	if err == nil {
		err = ch.Publish(ctx, env)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component":  "activity",
			"session_id": sessionID,
			"type":       ev.Type,
		}).WithError(err).Warn("failed to broadcast activity event")
	}
}
