package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"scenesync/internal/service"
	"scenesync/internal/transport/rest/handler"
	"scenesync/internal/transport/rest/middleware"
	"scenesync/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService       *service.AuthService
	SessionService    *service.SessionService
	AnnotationService *service.AnnotationService
	ViewportService   *service.ViewportService
	WSHub             *ws.Hub
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(c.SessionService)
	annotationHandler := handler.NewAnnotationHandler(c.AnnotationService, c.SessionService)
	viewportHandler := handler.NewViewportHandler(c.ViewportService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.SessionService, c.AnnotationService, c.ViewportService)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{idOrCode}/join", sessionHandler.Join).Methods("POST", "OPTIONS")

	// WebSocket route (public with token in query param)
	v1.HandleFunc("/ws/sessions/{id}", wsHandler.SessionWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Participant routes (require session-scoped auth)
	authed := v1.NewRoute().Subrouter()
	authed.Use(authMW.RequireParticipant)

	authed.HandleFunc("/sessions/{id}/leave", sessionHandler.Leave).Methods("POST", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/settings", sessionHandler.UpdateSettings).Methods("PUT", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/participants/role", sessionHandler.SetRole).Methods("PUT", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/participants/kick", sessionHandler.Kick).Methods("POST", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/snapshot", sessionHandler.Snapshot).Methods("GET", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/activity", sessionHandler.Activity).Methods("GET", "OPTIONS")

	authed.HandleFunc("/sessions/{id}/annotations", annotationHandler.List).Methods("GET", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/annotations", annotationHandler.Add).Methods("POST", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/annotations/{annotationId}", annotationHandler.Edit).Methods("PUT", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/annotations/{annotationId}", annotationHandler.Delete).Methods("DELETE", "OPTIONS")

	authed.HandleFunc("/sessions/{id}/camera/control", viewportHandler.RequestControl).Methods("POST", "OPTIONS")
	authed.HandleFunc("/sessions/{id}/camera/control", viewportHandler.ReleaseControl).Methods("DELETE", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
