// Package state holds the canonical in-memory projection of every live
// session. All mutation goes through the entry points below; readers only
// ever see copies, never live references.
package state

import (
	"sort"
	"sync"

	"scenesync/internal/model"
)

// DefaultActivityCapacity bounds each session's activity feed
const DefaultActivityCapacity = 100

// Snapshot is a point-in-time copy of one session's projection
type Snapshot struct {
	Session      model.Session
	Participants []model.Participant
	Annotations  []model.Annotation
	Activity     []model.ActivityEvent
	Camera       *model.CameraState
}

type sessionState struct {
	session      model.Session
	participants map[string]model.Participant
	annotations  map[string]model.Annotation
	activity     []model.ActivityEvent
	camera       *model.CameraState
}

// Store is the synchronized state store. One writer lock guards all
// sessions; every entry point applies its change in a single step so
// readers never observe a partial update.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*sessionState
	activityCap int
}

// NewStore creates an empty store with the given activity feed capacity
func NewStore(activityCap int) *Store {
	if activityCap <= 0 {
		activityCap = DefaultActivityCapacity
	}
	return &Store{
		sessions:    make(map[string]*sessionState),
		activityCap: activityCap,
	}
}

// PutSession inserts or replaces a session projection
func (s *Store) PutSession(sess model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sess.ID]
	if !ok {
		st = &sessionState{
			participants: make(map[string]model.Participant),
			annotations:  make(map[string]model.Annotation),
		}
		s.sessions[sess.ID] = st
	}
	st.session = sess
}

// RemoveSession drops a session projection entirely
func (s *Store) RemoveSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Session returns a copy of the session record
func (s *Store) Session(sessionID string) (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return model.Session{}, false
	}
	return st.session, true
}

// SessionIDs lists every session currently projected
func (s *Store) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UpsertParticipant inserts or replaces a participant record
func (s *Store) UpsertParticipant(sessionID string, p model.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	st.participants[p.ID] = p
}

// RemoveParticipant drops a participant record
func (s *Store) RemoveParticipant(sessionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	delete(st.participants, userID)
}

// Participant returns a copy of one participant record
func (s *Store) Participant(sessionID, userID string) (model.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return model.Participant{}, false
	}
	p, ok := st.participants[userID]
	return p, ok
}

// Participants returns copies of all participants, ordered by join time
func (s *Store) Participants(sessionID string) []model.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return copyParticipants(st)
}

// ParticipantCount returns the number of participants in a session
func (s *Store) ParticipantCount(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return 0
	}
	return len(st.participants)
}

// UpsertAnnotation inserts or replaces an annotation
func (s *Store) UpsertAnnotation(a model.Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[a.SessionID]
	if !ok {
		return
	}
	st.annotations[a.ID] = a
}

// RemoveAnnotation drops an annotation
func (s *Store) RemoveAnnotation(sessionID, annotationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	delete(st.annotations, annotationID)
}

// Annotation returns a copy of one annotation
func (s *Store) Annotation(sessionID, annotationID string) (model.Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return model.Annotation{}, false
	}
	a, ok := st.annotations[annotationID]
	return a, ok
}

// Annotations returns copies of all annotations, ordered by creation time
func (s *Store) Annotations(sessionID string) []model.Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return copyAnnotations(st)
}

// AppendActivity appends one event, evicting the oldest entry when the
// feed is at capacity
func (s *Store) AppendActivity(sessionID string, ev model.ActivityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	st.activity = append(st.activity, ev)
	if len(st.activity) > s.activityCap {
		st.activity = st.activity[len(st.activity)-s.activityCap:]
	}
}

// HasActivity reports whether an event id is already in the feed. The
// dispatcher uses this to ignore echoes of this instance's own events.
func (s *Store) HasActivity(sessionID, eventID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	for _, ev := range st.activity {
		if ev.ID == eventID {
			return true
		}
	}
	return false
}

// Activity returns a copy of the activity feed, oldest first
func (s *Store) Activity(sessionID string) []model.ActivityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]model.ActivityEvent, len(st.activity))
	copy(out, st.activity)
	return out
}

// SetCamera records the leader's viewport state
func (s *Store) SetCamera(sessionID string, cam model.CameraState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	c := cam
	st.camera = &c
}

// ClearCamera drops the viewport state, e.g. when leadership is released
func (s *Store) ClearCamera(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	st.camera = nil
}

// Camera returns a copy of the current viewport state, if any
func (s *Store) Camera(sessionID string) (model.CameraState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok || st.camera == nil {
		return model.CameraState{}, false
	}
	return *st.camera, true
}

// SnapshotSession returns a full copy of one session's projection
func (s *Store) SnapshotSession(sessionID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	snap := Snapshot{
		Session:      st.session,
		Participants: copyParticipants(st),
		Annotations:  copyAnnotations(st),
		Activity:     make([]model.ActivityEvent, len(st.activity)),
	}
	copy(snap.Activity, st.activity)
	if st.camera != nil {
		c := *st.camera
		snap.Camera = &c
	}
	return snap, true
}

func copyParticipants(st *sessionState) []model.Participant {
	out := make([]model.Participant, 0, len(st.participants))
	for _, p := range st.participants {
		if p.Cursor != nil {
			c := *p.Cursor
			p.Cursor = &c
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func copyAnnotations(st *sessionState) []model.Annotation {
	out := make([]model.Annotation, 0, len(st.annotations))
	for _, a := range st.annotations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
