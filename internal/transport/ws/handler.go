package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"scenesync/internal/model"
	"scenesync/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// snapshotMessage is the first frame sent to a freshly connected client
type snapshotMessage struct {
	Type     string `json:"type"`
	Snapshot any    `json:"snapshot"`
}

// Handler upgrades participant WebSocket connections and pumps messages
// between the client and the session services
type Handler struct {
	hub         *Hub
	authSvc     *service.AuthService
	sessions    *service.SessionService
	annotations *service.AnnotationService
	viewports   *service.ViewportService
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, authSvc *service.AuthService, sessions *service.SessionService, annotations *service.AnnotationService, viewports *service.ViewportService) *Handler {
	return &Handler{
		hub:         hub,
		authSvc:     authSvc,
		sessions:    sessions,
		annotations: annotations,
		viewports:   viewports,
	}
}

// SessionWS handles GET /v1/ws/sessions/{id}
func (h *Handler) SessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authSvc.ValidateParticipantToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if claims.SessionID != sessionID {
		http.Error(w, "token not valid for this session", http.StatusForbidden)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := &Connection{
		SessionID: sessionID,
		UserID:    claims.UserID,
		Send:      make(chan []byte, 256),
	}
	h.hub.Register(conn)
	h.sendSnapshot(conn)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

// sendSnapshot delivers the full current session state so a new client
// starts from the same projection as everyone else
func (h *Handler) sendSnapshot(conn *Connection) {
	snap, err := h.sessions.Snapshot(conn.SessionID)
	if err != nil {
		return
	}
	data, err := json.Marshal(snapshotMessage{Type: "snapshot", Snapshot: snap})
	if err != nil {
		return
	}
	h.hub.SendTo(conn.SessionID, conn.UserID, data)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		h.sessions.Heartbeat(context.Background(), conn.SessionID, conn.UserID)
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithFields(logrus.Fields{
					"session_id": conn.SessionID,
					"user_id":    conn.UserID,
				}).Debug("websocket read error")
			}
			break
		}
		h.handleInbound(conn, data)
	}
}

// handleInbound routes one client frame to the owning service. The sender
// identity always comes from the authenticated connection, never from the
// frame itself.
func (h *Handler) handleInbound(conn *Connection, data []byte) {
	ctx := context.Background()

	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	env.SessionID = conn.SessionID
	env.SenderID = conn.UserID

	payload, err := env.Decode()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component":  "ws",
			"session_id": conn.SessionID,
			"type":       env.Type,
		}).WithError(err).Debug("dropping malformed frame")
		return
	}

	var opErr error
	switch p := payload.(type) {
	case model.CursorMovePayload:
		opErr = h.viewports.UpdateCursor(ctx, conn.SessionID, conn.UserID, p.Cursor)

	case model.CameraUpdatePayload:
		opErr = h.viewports.UpdateCamera(ctx, conn.SessionID, conn.UserID, p.State)

	case model.AnnotationAddPayload:
		_, opErr = h.annotations.Add(ctx, conn.SessionID, conn.UserID,
			p.Annotation.Content, p.Annotation.Position, p.Annotation.Target)

	case model.AnnotationEditPayload:
		opErr = h.annotations.Edit(ctx, conn.SessionID, conn.UserID, p.ID, p.Patch)

	case model.AnnotationDeletePayload:
		opErr = h.annotations.Delete(ctx, conn.SessionID, conn.UserID, p.ID)

	case model.HeartbeatPayload:
		h.sessions.Heartbeat(ctx, conn.SessionID, conn.UserID)

	case model.UserLeavePayload:
		opErr = h.sessions.Leave(ctx, conn.SessionID, conn.UserID)

	default:
		// Other message kinds originate server side only.
	}

	if opErr != nil {
		h.sendError(conn, env.Type, opErr)
	}
}

// errorFrame is pushed back to a client whose operation was refused
type errorFrame struct {
	Type   string            `json:"type"`
	Origin model.MessageType `json:"origin"`
	Error  string            `json:"error"`
}

func (h *Handler) sendError(conn *Connection, origin model.MessageType, opErr error) {
	data, err := json.Marshal(errorFrame{Type: "error", Origin: origin, Error: opErr.Error()})
	if err != nil {
		return
	}
	// The hub resolves the live connection for this user. Writing to the
	// captured conn directly would race a reconnect, which closes it.
	h.hub.SendTo(conn.SessionID, conn.UserID, data)
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
