package handler

import (
	"net/http"

	"scenesync/internal/service"
	"scenesync/internal/transport/rest/middleware"
)

// ViewportHandler handles camera leadership endpoints
type ViewportHandler struct {
	viewportSvc *service.ViewportService
}

// NewViewportHandler creates a new viewport handler
func NewViewportHandler(viewportSvc *service.ViewportService) *ViewportHandler {
	return &ViewportHandler{viewportSvc: viewportSvc}
}

// RequestControl handles POST /v1/sessions/{id}/camera/control
func (h *ViewportHandler) RequestControl(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	userID := middleware.GetUserID(r.Context())

	if err := h.viewportSvc.RequestControl(r.Context(), sessionID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"leaderId": userID})
}

// ReleaseControl handles DELETE /v1/sessions/{id}/camera/control
func (h *ViewportHandler) ReleaseControl(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())
	userID := middleware.GetUserID(r.Context())

	if err := h.viewportSvc.ReleaseControl(r.Context(), sessionID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}
