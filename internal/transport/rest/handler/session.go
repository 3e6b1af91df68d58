package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"scenesync/internal/model"
	"scenesync/internal/service"
	"scenesync/internal/transport/rest/middleware"
)

// SessionHandler handles session lifecycle endpoints
type SessionHandler struct {
	sessionSvc *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionSvc *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc}
}

// CreateSessionRequest is the request body for creating a session
type CreateSessionRequest struct {
	Name        string `json:"name"`
	StructureID string `json:"structureId"`
	UserName    string `json:"userName"`
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserName == "" {
		writeError(w, http.StatusBadRequest, "userName is required")
		return
	}
	if req.Name == "" {
		req.Name = "Review session"
	}

	ownerID := "p_" + uuid.New().String()[:8]
	resp, err := h.sessionSvc.Create(r.Context(), req.Name, req.StructureID, ownerID, req.UserName)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// JoinRequest is the request body for joining a session
type JoinRequest struct {
	UserName string `json:"userName"`
}

// Join handles POST /v1/sessions/{idOrCode}/join. The path segment is a
// session id or an invite code; both resolve the same way.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	idOrCode := mux.Vars(r)["idOrCode"]

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserName == "" {
		writeError(w, http.StatusBadRequest, "userName is required")
		return
	}

	userID := "p_" + uuid.New().String()[:8]
	resp, err := h.sessionSvc.Join(r.Context(), idOrCode, userID, req.UserName)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Leave handles POST /v1/sessions/{id}/leave
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	userID := middleware.GetUserID(r.Context())

	if err := h.sessionSvc.Leave(r.Context(), sessionID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// SetRoleRequest is the request body for a role change
type SetRoleRequest struct {
	UserID string     `json:"userId"`
	Role   model.Role `json:"role"`
}

// SetRole handles PUT /v1/sessions/{id}/participants/role
func (h *SessionHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	actorID := middleware.GetUserID(r.Context())

	var req SetRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role != model.RolePresenter && req.Role != model.RoleViewer {
		writeError(w, http.StatusBadRequest, "role must be presenter or viewer")
		return
	}

	if err := h.sessionSvc.SetRole(r.Context(), sessionID, actorID, req.UserID, req.Role); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// KickRequest is the request body for removing a participant
type KickRequest struct {
	UserID string `json:"userId"`
}

// Kick handles POST /v1/sessions/{id}/participants/kick
func (h *SessionHandler) Kick(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	actorID := middleware.GetUserID(r.Context())

	var req KickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessionSvc.Kick(r.Context(), sessionID, actorID, req.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UpdateSettings handles PUT /v1/sessions/{id}/settings
func (h *SessionHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	actorID := middleware.GetUserID(r.Context())

	var settings model.SessionSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if settings.MaxParticipants <= 0 {
		writeError(w, http.StatusBadRequest, "maxParticipants must be positive")
		return
	}

	if err := h.sessionSvc.UpdateSettings(r.Context(), sessionID, actorID, settings); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Snapshot handles GET /v1/sessions/{id}/snapshot
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	snap, err := h.sessionSvc.Snapshot(sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Activity handles GET /v1/sessions/{id}/activity
func (h *SessionHandler) Activity(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	snap, err := h.sessionSvc.Snapshot(sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"activity": snap.Activity})
}
