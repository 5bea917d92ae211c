package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/fmonfasani/mini-lab-ott/engine/types"
)

// WSMessageType represents different types of WebSocket messages
type WSMessageType string

const (
	WSMessageTypeConnection  WSMessageType = "connection"
	WSMessageTypeRunStarted  WSMessageType = "run_started"
	WSMessageTypeRunComplete WSMessageType = "run_complete"
	WSMessageTypeRunFailed   WSMessageType = "run_failed"
)

// WSMessage represents a WebSocket message structure
type WSMessage struct {
	Type      WSMessageType `json:"type"`
	Data      interface{}   `json:"data,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	ClientID  string        `json:"client_id,omitempty"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *WSHub
}

// WSHub broadcasts run lifecycle events to connected dashboard clients.
type WSHub struct {
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan []byte

	log logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

const (
	wsWriteTimeout   = 10 * time.Second
	wsReadTimeout    = 60 * time.Second
	wsPingInterval   = 54 * time.Second
	wsMaxMessageSize = 64 * 1024
	wsClientBuffer   = 64
	wsMaxClients     = 100
)

// NewWSHub creates a new WebSocket hub instance
func NewWSHub(log logrus.FieldLogger) *WSHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient, wsMaxClients),
		unregister: make(chan *WSClient, wsMaxClients),
		broadcast:  make(chan []byte, 256),
		log:        log.WithField("component", "websocket-hub"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub loop.
func (h *WSHub) Run() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runHub()
	}()
	h.log.Info("WebSocket hub started")
}

// Stop gracefully shuts down the hub and all client connections.
func (h *WSHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.Send)
		client.Conn.Close()
	}
	h.clients = make(map[*WSClient]bool)
	h.mu.Unlock()

	h.wg.Wait()
	h.log.Info("WebSocket hub stopped")
}

func (h *WSHub) runHub() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= wsMaxClients {
				h.mu.Unlock()
				h.log.Warn("Maximum client limit reached, rejecting connection")
				client.Conn.Close()
				continue
			}
			h.clients[client] = true
			h.mu.Unlock()

			welcome, _ := json.Marshal(WSMessage{
				Type:      WSMessageTypeConnection,
				Data:      map[string]interface{}{"status": "connected", "client_id": client.ID},
				Timestamp: time.Now(),
				ClientID:  client.ID,
			})
			select {
			case client.Send <- welcome:
			default:
			}
			h.log.WithField("client_id", client.ID).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				client.Conn.Close()
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Slow consumer, drop the message for this client.
					h.log.WithField("client_id", client.ID).Warn("Client send channel full")
				}
			}
			h.mu.RUnlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// NotifyRunStarted broadcasts that a test run has been opened.
func (h *WSHub) NotifyRunStarted(runID int64, kind types.TestKind) {
	h.broadcastMessage(WSMessageTypeRunStarted, map[string]interface{}{
		"run_id": runID,
		"kind":   kind,
	})
}

// NotifyRunFinished broadcasts the outcome of a finished run.
func (h *WSHub) NotifyRunFinished(runID int64, kind types.TestKind, ok bool, durationMS int64, errMsg string) {
	msgType := WSMessageTypeRunComplete
	data := map[string]interface{}{
		"run_id":      runID,
		"kind":        kind,
		"ok":          ok,
		"duration_ms": durationMS,
	}
	if !ok {
		msgType = WSMessageTypeRunFailed
		data["error"] = errMsg
	}
	h.broadcastMessage(msgType, data)
}

func (h *WSHub) broadcastMessage(messageType WSMessageType, data interface{}) {
	msgBytes, err := json.Marshal(WSMessage{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- msgBytes:
	default:
		h.log.Warn("Broadcast channel full, dropping message")
	}
}

// ConnectedClients returns the number of currently connected clients.
func (h *WSHub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection upgrades an HTTP request and registers the client.
func (h *WSHub) HandleConnection(upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.WithError(err).Error("Failed to upgrade WebSocket connection")
			return
		}

		client := &WSClient{
			ID:   uuid.New().String(),
			Conn: conn,
			Send: make(chan []byte, wsClientBuffer),
			Hub:  h,
		}

		select {
		case h.register <- client:
		case <-h.ctx.Done():
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump drains incoming frames until the client disconnects.
func (c *WSClient) readPump() {
	defer func() {
		c.Hub.unregister <- c
	}()

	c.Conn.SetReadLimit(wsMaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.WithError(err).WithField("client_id", c.ID).Error("WebSocket read error")
			}
			return
		}
	}
}

// writePump pushes broadcast messages and heartbeats to the client.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.Hub.ctx.Done():
			return
		}
	}
}
