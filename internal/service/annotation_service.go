package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"scenesync/internal/broadcast"
	"scenesync/internal/clock"
	"scenesync/internal/conflict"
	"scenesync/internal/model"
	"scenesync/internal/state"
)

// AnnotationService applies annotation changes optimistically, broadcasts
// them, and reconciles remote updates through the conflict engine.
type AnnotationService struct {
	store   *state.Store
	engine  *conflict.Engine
	channel broadcast.Channel
	clk     clock.Clock
}

// NewAnnotationService creates an annotation service
func NewAnnotationService(store *state.Store, engine *conflict.Engine, channel broadcast.Channel, clk clock.Clock) *AnnotationService {
	return &AnnotationService{store: store, engine: engine, channel: channel, clk: clk}
}

// Add creates an annotation. The local view is updated immediately; a
// failed broadcast rolls it back.
func (a *AnnotationService) Add(ctx context.Context, sessionID, userID, content string, position model.Vec3, target string) (*model.Annotation, error) {
	if err := a.checkCanAnnotate(sessionID, userID); err != nil {
		return nil, err
	}

	now := a.clk.Now()
	p, _ := a.store.Participant(sessionID, userID)
	ann := model.Annotation{
		ID:        "a_" + uuid.New().String()[:8],
		SessionID: sessionID,
		AuthorID:  userID,
		Content:   content,
		Position:  position,
		Target:    target,
		Color:     p.Color,
		CreatedAt: now,
		UpdatedAt: now,
	}

	upd := a.engine.RegisterAdd(ann)
	env, err := model.NewEnvelope(model.MsgAnnotationAdd, sessionID, userID, upd.Timestamp,
		model.AnnotationAddPayload{Annotation: ann})
	if err == nil {
		err = a.channel.Publish(ctx, env)
	}
	if err != nil {
		a.engine.Rollback(sessionID, ann.ID)
		return nil, fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}

	logActivity(ctx, a.store, a.channel, sessionID,
		newActivity(now, model.ActivityAnnotationAdd, userID, p.Name+" added an annotation",
			map[string]any{"annotationId": ann.ID}))
	return &ann, nil
}

// Edit patches an annotation. Author-only; the check happens before the
// local view is touched.
func (a *AnnotationService) Edit(ctx context.Context, sessionID, userID, annotationID string, patch model.AnnotationPatch) error {
	if err := a.checkCanAnnotate(sessionID, userID); err != nil {
		return err
	}
	if patch.IsEmpty() {
		return nil
	}

	upd, err := a.engine.RegisterEdit(sessionID, annotationID, patch, userID)
	if err != nil {
		return a.mapEngineErr(err)
	}

	env, err := model.NewEnvelope(model.MsgAnnotationEdit, sessionID, userID, upd.Timestamp,
		model.AnnotationEditPayload{ID: annotationID, UserID: userID, Patch: patch, Timestamp: upd.Timestamp})
	if err == nil {
		err = a.channel.Publish(ctx, env)
	}
	if err != nil {
		a.engine.Rollback(sessionID, annotationID)
		return fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}

	if p, ok := a.store.Participant(sessionID, userID); ok {
		logActivity(ctx, a.store, a.channel, sessionID,
			newActivity(a.clk.Now(), model.ActivityAnnotationEdit, userID, p.Name+" edited an annotation",
				map[string]any{"annotationId": annotationID}))
	}
	return nil
}

// Delete removes an annotation. Author-only.
func (a *AnnotationService) Delete(ctx context.Context, sessionID, userID, annotationID string) error {
	if err := a.checkCanAnnotate(sessionID, userID); err != nil {
		return err
	}

	upd, err := a.engine.RegisterDelete(sessionID, annotationID, userID)
	if err != nil {
		return a.mapEngineErr(err)
	}

	env, err := model.NewEnvelope(model.MsgAnnotationDelete, sessionID, userID, upd.Timestamp,
		model.AnnotationDeletePayload{ID: annotationID, UserID: userID})
	if err == nil {
		err = a.channel.Publish(ctx, env)
	}
	if err != nil {
		a.engine.Rollback(sessionID, annotationID)
		return fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}

	if p, ok := a.store.Participant(sessionID, userID); ok {
		logActivity(ctx, a.store, a.channel, sessionID,
			newActivity(a.clk.Now(), model.ActivityAnnotationDelete, userID, p.Name+" deleted an annotation",
				map[string]any{"annotationId": annotationID}))
	}
	return nil
}

// HandleRemoteAdd applies an annotation created elsewhere. Echoes of this
// instance's own pending adds confirm them instead.
func (a *AnnotationService) HandleRemoteAdd(sessionID, senderID string, payload model.AnnotationAddPayload) {
	if upd, ok := a.engine.Pending(payload.Annotation.ID); ok && upd.UserID == senderID {
		a.engine.Confirm(payload.Annotation.ID, upd.Version)
		return
	}
	a.engine.ApplyRemoteAdd(payload.Annotation)
}

// HandleRemoteEdit reconciles an edit made elsewhere against any pending
// local change to the same annotation
func (a *AnnotationService) HandleRemoteEdit(sessionID, senderID string, payload model.AnnotationEditPayload) {
	if upd, ok := a.engine.Pending(payload.ID); ok && upd.UserID == senderID {
		a.engine.Confirm(payload.ID, upd.Version)
		return
	}
	res, err := a.engine.Resolve(sessionID, payload.ID, conflict.RemoteUpdate{
		UserID:    payload.UserID,
		Timestamp: payload.Timestamp,
		Patch:     payload.Patch,
	}, conflict.LastWriteWins)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component":     "annotation",
			"session_id":    sessionID,
			"annotation_id": payload.ID,
		}).WithError(err).Debug("remote edit dropped")
		return
	}
	if len(res.Conflicts) > 0 || (res.Applied && !res.LocalWon) {
		logrus.WithFields(logrus.Fields{
			"component":     "annotation",
			"session_id":    sessionID,
			"annotation_id": payload.ID,
			"local_won":     res.LocalWon,
		}).Debug("remote edit reconciled")
	}
}

// HandleRemoteDelete applies a deletion made elsewhere
func (a *AnnotationService) HandleRemoteDelete(sessionID, senderID string, payload model.AnnotationDeletePayload, timestamp int64) {
	if upd, ok := a.engine.Pending(payload.ID); ok && upd.UserID == senderID {
		a.engine.Confirm(payload.ID, upd.Version)
		return
	}
	a.engine.ApplyRemoteDelete(sessionID, payload.ID, conflict.RemoteUpdate{
		UserID:    payload.UserID,
		Timestamp: timestamp,
	})
}

func (a *AnnotationService) checkCanAnnotate(sessionID, userID string) error {
	session, ok := a.store.Session(sessionID)
	if !ok {
		return ErrNotFound
	}
	if session.Expired(a.clk.Now()) || !session.Active {
		return ErrSessionExpired
	}
	p, ok := a.store.Participant(sessionID, userID)
	if !ok {
		return ErrNotFound
	}
	if !p.Role.CanAnnotate() || !session.Settings.AllowAnnotations {
		return ErrPermissionDenied
	}
	return nil
}

func (a *AnnotationService) mapEngineErr(err error) error {
	switch {
	case errors.Is(err, conflict.ErrNotOwner):
		return ErrPermissionDenied
	case errors.Is(err, conflict.ErrUnknownAnnotation):
		return ErrNotFound
	default:
		return err
	}
}
