package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"scenesync/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrSessionExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, service.ErrSessionFull):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrConflictRejected):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrTransportFailure):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
