// Package conflict reconciles optimistic local annotation edits against
// remote updates. Every mutation passes through the state store's entry
// points, which is what makes "apply, then possibly roll back" safe.
package conflict

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"scenesync/internal/clock"
	"scenesync/internal/model"
	"scenesync/internal/state"
)

// ErrNotOwner is returned before any store mutation when a user tries to
// register an optimistic change to an annotation they did not author.
var ErrNotOwner = errors.New("not the annotation author")

// ErrUnknownAnnotation is returned when the target annotation does not exist
var ErrUnknownAnnotation = errors.New("annotation not found")

// Strategy selects how a local/remote disagreement is settled
type Strategy string

const (
	// LastWriteWins lets the update with the larger timestamp win outright;
	// ties break toward the lexicographically smaller user id so every
	// client settles on the same winner.
	LastWriteWins Strategy = "last-write-wins"
	// Merge combines field by field; per field the later timestamp wins
	Merge Strategy = "merge"
	// Reject discards the local change; remote always overwrites
	Reject Strategy = "reject"
)

// Update is one registered optimistic mutation, keyed by entity id
type Update struct {
	EntityID  string
	SessionID string
	UserID    string
	Timestamp int64 // unix milliseconds, local stamp
	Version   uint64
	Patch     model.AnnotationPatch
	Deleted   bool

	prior      *model.Annotation // nil when the update created the entity
	priorStamp stamp             // applied stamp before the optimistic write
	hadStamp   bool
}

// RemoteUpdate is an inbound change for the same entity from another client
type RemoteUpdate struct {
	UserID    string
	Timestamp int64
	Patch     model.AnnotationPatch
}

// FieldConflict describes one field where local and remote disagreed
type FieldConflict struct {
	Field    string `json:"field"`
	Local    any    `json:"local"`
	Remote   any    `json:"remote"`
	Resolved any    `json:"resolved"`
}

// Resolution is the outcome of reconciling one entity
type Resolution struct {
	Strategy  Strategy
	EntityID  string
	LocalWon  bool
	Applied   bool // false when the remote was stale or a duplicate
	Conflicts []FieldConflict
	Result    model.Annotation
}

type stamp struct {
	ts     int64
	userID string
}

// beats reports whether a wins over b under the deterministic total order
func (a stamp) beats(b stamp) bool {
	if a.ts != b.ts {
		return a.ts > b.ts
	}
	return a.userID < b.userID
}

// Engine is the optimistic update registry plus resolution logic
type Engine struct {
	mu      sync.Mutex
	store   *state.Store
	clk     clock.Clock
	version uint64
	pending map[string]*Update // entity id -> registered optimistic update
	applied map[string]stamp   // entity id -> stamp of last applied write
}

// NewEngine creates an engine bound to the synchronized state store
func NewEngine(store *state.Store, clk clock.Clock) *Engine {
	return &Engine{
		store:   store,
		clk:     clk,
		pending: make(map[string]*Update),
		applied: make(map[string]stamp),
	}
}

// RegisterAdd optimistically inserts a brand new annotation
func (e *Engine) RegisterAdd(a model.Annotation) *Update {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.version++
	up := &Update{
		EntityID:  a.ID,
		SessionID: a.SessionID,
		UserID:    a.AuthorID,
		Timestamp: a.UpdatedAt.UnixMilli(),
		Version:   e.version,
		Patch:     model.PatchFromAnnotation(a),
	}
	if prev, ok := e.applied[a.ID]; ok {
		up.priorStamp, up.hadStamp = prev, true
	}
	e.pending[a.ID] = up
	e.applied[a.ID] = stamp{ts: up.Timestamp, userID: up.UserID}
	e.store.UpsertAnnotation(a)
	return up
}

// RegisterEdit optimistically applies a patch to an existing annotation.
// The author check happens before any store mutation: an unauthorized edit
// is never visible, not even transiently.
func (e *Engine) RegisterEdit(sessionID, entityID string, patch model.AnnotationPatch, userID string) (*Update, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	current, ok := e.store.Annotation(sessionID, entityID)
	if !ok {
		return nil, ErrUnknownAnnotation
	}
	if current.AuthorID != userID {
		return nil, ErrNotOwner
	}

	now := e.clk.Now()
	e.version++
	prior := current
	up := &Update{
		EntityID:  entityID,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: now.UnixMilli(),
		Version:   e.version,
		Patch:     patch,
		prior:     &prior,
	}
	if prev, ok := e.applied[entityID]; ok {
		up.priorStamp, up.hadStamp = prev, true
	}
	// A second optimistic edit before the first round-trips keeps the
	// original pre-optimistic state and stamp as its rollback point.
	if existing, ok := e.pending[entityID]; ok {
		if existing.prior != nil {
			up.prior = existing.prior
		}
		up.priorStamp, up.hadStamp = existing.priorStamp, existing.hadStamp
	}
	e.pending[entityID] = up
	e.applied[entityID] = stamp{ts: up.Timestamp, userID: userID}

	next := patch.Apply(current)
	next.UpdatedAt = now
	e.store.UpsertAnnotation(next)
	return up, nil
}

// RegisterDelete optimistically removes an annotation
func (e *Engine) RegisterDelete(sessionID, entityID, userID string) (*Update, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	current, ok := e.store.Annotation(sessionID, entityID)
	if !ok {
		return nil, ErrUnknownAnnotation
	}
	if current.AuthorID != userID {
		return nil, ErrNotOwner
	}

	e.version++
	prior := current
	up := &Update{
		EntityID:  entityID,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: e.clk.Now().UnixMilli(),
		Version:   e.version,
		Deleted:   true,
		prior:     &prior,
	}
	if prev, ok := e.applied[entityID]; ok {
		up.priorStamp, up.hadStamp = prev, true
	}
	if existing, ok := e.pending[entityID]; ok {
		up.priorStamp, up.hadStamp = existing.priorStamp, existing.hadStamp
	}
	e.pending[entityID] = up
	e.applied[entityID] = stamp{ts: up.Timestamp, userID: userID}
	e.store.RemoveAnnotation(sessionID, entityID)
	return up, nil
}

// Rollback restores the entity to its pre-optimistic state, including the
// stamp that suppresses redelivered remote updates. Used when the
// broadcast send failed or a resolution rejected the local change.
func (e *Engine) Rollback(sessionID, entityID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	up, ok := e.pending[entityID]
	if !ok {
		return
	}
	delete(e.pending, entityID)
	if up.hadStamp {
		e.applied[entityID] = up.priorStamp
	} else {
		delete(e.applied, entityID)
	}
	if up.prior == nil {
		e.store.RemoveAnnotation(sessionID, entityID)
		return
	}
	e.store.UpsertAnnotation(*up.prior)
}

// Confirm drops a pending update once its own broadcast round-tripped
// without a competing remote write.
func (e *Engine) Confirm(entityID string, version uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if up, ok := e.pending[entityID]; ok && up.Version <= version {
		delete(e.pending, entityID)
	}
}

// Pending returns the registered optimistic update for an entity, if any
func (e *Engine) Pending(entityID string) (*Update, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	up, ok := e.pending[entityID]
	return up, ok
}

// DiscardUser drops every pending update a user registered in a session.
// Leaving cancels them outright: there is no local view left to roll back
// into, so the store is not touched.
func (e *Engine) DiscardUser(sessionID, userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, up := range e.pending {
		if up.SessionID == sessionID && up.UserID == userID {
			delete(e.pending, id)
		}
	}
}

// DiscardSession drops all bookkeeping for a session
func (e *Engine) DiscardSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, up := range e.pending {
		if up.SessionID == sessionID {
			delete(e.pending, id)
			delete(e.applied, id)
		}
	}
}

// ApplyRemoteAdd inserts an annotation received from the broadcast channel.
// Duplicate delivery is a no-op.
func (e *Engine) ApplyRemoteAdd(a model.Annotation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	incoming := stamp{ts: a.UpdatedAt.UnixMilli(), userID: a.AuthorID}
	if prev, ok := e.applied[a.ID]; ok && !incoming.beats(prev) {
		return
	}
	e.applied[a.ID] = incoming
	e.store.UpsertAnnotation(a)
}

// ApplyRemoteDelete removes an annotation on a remote author's behalf
func (e *Engine) ApplyRemoteDelete(sessionID, entityID string, remote RemoteUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, entityID)
	e.applied[entityID] = stamp{ts: remote.Timestamp, userID: remote.UserID}
	e.store.RemoveAnnotation(sessionID, entityID)
}

// Resolve reconciles a remote update against any pending local update for
// the same entity. The strategies are commutative for a single entity:
// the final state is the same whichever update arrives first, which is
// required because cross-sender ordering is not guaranteed.
func (e *Engine) Resolve(sessionID, entityID string, remote RemoteUpdate, strategy Strategy) (Resolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := Resolution{Strategy: strategy, EntityID: entityID}
	local, hasLocal := e.pending[entityID]
	current, exists := e.store.Annotation(sessionID, entityID)
	if !exists && !hasLocal {
		return res, ErrUnknownAnnotation
	}

	remoteStamp := stamp{ts: remote.Timestamp, userID: remote.UserID}

	if !hasLocal {
		// No local edit in flight: apply the remote unless it is stale or a
		// duplicate. This is what makes duplicate delivery idempotent and
		// out-of-order remotes converge to the same state.
		if prev, ok := e.applied[entityID]; ok && !remoteStamp.beats(prev) {
			res.Result = current
			return res, nil
		}
		next := remote.Patch.Apply(current)
		next.UpdatedAt = time.UnixMilli(remote.Timestamp)
		e.store.UpsertAnnotation(next)
		e.applied[entityID] = remoteStamp
		res.Applied = true
		res.Result = next
		return res, nil
	}

	localStamp := stamp{ts: local.Timestamp, userID: local.UserID}
	base := current
	if local.prior != nil {
		base = *local.prior
	}

	var next model.Annotation
	switch strategy {
	case LastWriteWins:
		if localStamp.beats(remoteStamp) {
			// Local edit stands; the remote is discarded whole.
			res.LocalWon = true
			res.Result = current
			delete(e.pending, entityID)
			return res, nil
		}
		next = remote.Patch.Apply(base)
		e.applied[entityID] = remoteStamp

	case Merge:
		var conflicts []FieldConflict
		next, conflicts = mergeFields(base, local.Patch, localStamp, remote.Patch, remoteStamp)
		res.Conflicts = conflicts
		res.LocalWon = localStamp.beats(remoteStamp)
		winner := remoteStamp
		if res.LocalWon {
			winner = localStamp
		}
		e.applied[entityID] = winner

	case Reject:
		// The local client was not authoritative for this entity; the
		// remote overwrites whatever was applied optimistically.
		next = remote.Patch.Apply(base)
		e.applied[entityID] = remoteStamp

	default:
		return res, errors.New("unknown resolution strategy: " + string(strategy))
	}

	next.UpdatedAt = time.UnixMilli(maxInt64(local.Timestamp, remote.Timestamp))
	e.store.UpsertAnnotation(next)
	delete(e.pending, entityID)
	res.Applied = true
	res.Result = next

	logrus.WithFields(logrus.Fields{
		"component": "conflict",
		"entity_id": entityID,
		"strategy":  strategy,
		"local_won": res.LocalWon,
		"conflicts": len(res.Conflicts),
	}).Debug("resolved concurrent update")
	return res, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
