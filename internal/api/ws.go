package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gunmetal-robotics/sentry/internal/monitoring"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // operator LAN surface, all origins allowed
	},
}

// wsClient is one connected status-stream consumer.
type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

type wsHub struct {
	mu      sync.Mutex
	clients map[*wsClient]bool
}

func newWSHub() *wsHub {
	return &wsHub{clients: make(map[*wsClient]bool)}
}

func (h *wsHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		c.close()
	}
	h.clients = make(map[*wsClient]bool)
	h.mu.Unlock()
}

func (h *wsHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseClients drops every connected websocket client. Called on shutdown.
func (s *Server) CloseClients() {
	s.hub.closeAll()
}

// handleWebSocket serves /ws: a one-way stream of StatusAPI snapshots, one
// immediately on connect and then one per stream interval.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("WebSocket upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}
	s.hub.add(client)
	defer func() {
		s.hub.remove(client)
		client.close()
	}()

	go client.writePump()
	go s.streamStatus(client)
	client.readPump()
}

// streamStatus pushes snapshots to one client until it disconnects.
func (s *Server) streamStatus(c *wsClient) {
	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	s.pushStatus(c)
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			s.pushStatus(c)
		}
	}
}

func (s *Server) pushStatus(c *wsClient) {
	data, err := json.Marshal(s.statusSnapshot(s.units))
	if err != nil {
		monitoring.Logf("Failed to marshal status snapshot: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow consumer; the next tick carries a fresher snapshot anyway.
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client frames until the connection drops. Inbound
// messages are discarded; the stream is one-way.
func (c *wsClient) readPump() {
	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
