package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"scenesync/internal/broadcast"
	"scenesync/internal/model"
	"scenesync/internal/service"
)

// Hub manages WebSocket connections per session and bridges them to the
// broadcast channel: inbound channel messages are applied to local state
// by the dispatcher, then fanned out to every connected client except the
// original sender.
type Hub struct {
	channel    broadcast.Channel
	dispatcher *service.Dispatcher

	mu    sync.RWMutex
	conns map[string]map[string]*Connection // sessionID -> userID -> conn
	subs  map[string]func()                 // sessionID -> channel unsubscribe

	register   chan *Connection
	unregister chan *Connection
}

// Connection represents one participant's WebSocket connection
type Connection struct {
	SessionID string
	UserID    string
	Send      chan []byte
}

// NewHub creates a hub and starts its coordination loop
func NewHub(channel broadcast.Channel, dispatcher *service.Dispatcher) *Hub {
	h := &Hub{
		channel:    channel,
		dispatcher: dispatcher,
		conns:      make(map[string]map[string]*Connection),
		subs:       make(map[string]func()),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.SessionID] == nil {
				h.conns[conn.SessionID] = make(map[string]*Connection)
			}
			// A reconnect replaces the stale connection for the same user.
			if old, ok := h.conns[conn.SessionID][conn.UserID]; ok {
				close(old.Send)
			}
			h.conns[conn.SessionID][conn.UserID] = conn
			h.ensureSubscribed(conn.SessionID)
			h.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"component":  "ws",
				"session_id": conn.SessionID,
				"user_id":    conn.UserID,
			}).Info("client connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if users, ok := h.conns[conn.SessionID]; ok {
				if existing, ok := users[conn.UserID]; ok && existing == conn {
					delete(users, conn.UserID)
					close(conn.Send)
				}
				if len(users) == 0 {
					delete(h.conns, conn.SessionID)
					if unsub, ok := h.subs[conn.SessionID]; ok {
						unsub()
						delete(h.subs, conn.SessionID)
					}
				}
			}
			h.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"component":  "ws",
				"session_id": conn.SessionID,
				"user_id":    conn.UserID,
			}).Info("client disconnected")
		}
	}
}

// ensureSubscribed wires the session's broadcast subscription exactly once.
// Caller holds h.mu.
func (h *Hub) ensureSubscribed(sessionID string) {
	if _, ok := h.subs[sessionID]; ok {
		return
	}
	unsub, err := h.channel.Subscribe(context.Background(), sessionID, func(env model.Envelope) {
		h.dispatcher.Apply(env)
		h.fanOut(env)
	})
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("failed to subscribe to session channel")
		return
	}
	h.subs[sessionID] = unsub
}

// fanOut sends an envelope to every client in the session except its
// sender, whose local view already reflects the change
func (h *Hub) fanOut(env model.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for userID, conn := range h.conns[env.SessionID] {
		if userID == env.SenderID {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			// Drop rather than block the fan-out on a slow client.
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// SendTo delivers a payload to one specific client, used for the initial
// state snapshot on connect
func (h *Hub) SendTo(sessionID, userID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if users, ok := h.conns[sessionID]; ok {
		if conn, ok := users[userID]; ok {
			select {
			case conn.Send <- data:
			default:
			}
		}
	}
}
