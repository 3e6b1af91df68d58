package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"scenesync/internal/model"
	"scenesync/internal/service"
	"scenesync/internal/transport/rest/middleware"
)

// AnnotationHandler handles annotation endpoints
type AnnotationHandler struct {
	annotationSvc *service.AnnotationService
	sessionSvc    *service.SessionService
}

// NewAnnotationHandler creates a new annotation handler
func NewAnnotationHandler(annotationSvc *service.AnnotationService, sessionSvc *service.SessionService) *AnnotationHandler {
	return &AnnotationHandler{annotationSvc: annotationSvc, sessionSvc: sessionSvc}
}

// AddAnnotationRequest is the request body for creating an annotation
type AddAnnotationRequest struct {
	Content  string     `json:"content"`
	Position model.Vec3 `json:"position"`
	Target   string     `json:"target,omitempty"`
}

// Add handles POST /v1/sessions/{id}/annotations
func (h *AnnotationHandler) Add(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	userID := middleware.GetUserID(r.Context())

	var req AddAnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	ann, err := h.annotationSvc.Add(r.Context(), sessionID, userID, req.Content, req.Position, req.Target)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ann)
}

// Edit handles PUT /v1/sessions/{id}/annotations/{annotationId}
func (h *AnnotationHandler) Edit(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	userID := middleware.GetUserID(r.Context())
	annotationID := mux.Vars(r)["annotationId"]

	var patch model.AnnotationPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.annotationSvc.Edit(r.Context(), sessionID, userID, annotationID, patch); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Delete handles DELETE /v1/sessions/{id}/annotations/{annotationId}
func (h *AnnotationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	userID := middleware.GetUserID(r.Context())
	annotationID := mux.Vars(r)["annotationId"]

	if err := h.annotationSvc.Delete(r.Context(), sessionID, userID, annotationID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// List handles GET /v1/sessions/{id}/annotations
func (h *AnnotationHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	snap, err := h.sessionSvc.Snapshot(sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"annotations": snap.Annotations})
}
