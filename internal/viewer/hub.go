package viewer

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub owns the set of connected viewer clients and broadcasts
// artifact-updated notifications to all of them. A single goroutine
// owns the connection map so register/unregister/broadcast never race.
type hub struct {
	register   chan *wsConn
	unregister chan *wsConn
	broadcast  chan []byte
	conns      map[*wsConn]bool
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub() *hub {
	return &hub{
		register:   make(chan *wsConn),
		unregister: make(chan *wsConn),
		broadcast:  make(chan []byte, 16),
		conns:      make(map[*wsConn]bool),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.conns[c] = true

		case c := <-h.unregister:
			if _, ok := h.conns[c]; ok {
				delete(h.conns, c)
				close(c.send)
			}

		case msg := <-h.broadcast:
			for c := range h.conns {
				select {
				case c.send <- msg:
				default:
					// Slow client; drop rather than block the hub.
					delete(h.conns, c)
					close(c.send)
				}
			}
		}
	}
}

func (h *hub) notifyArtifactUpdated() {
	h.broadcast <- []byte(`{"type":"artifact_updated"}`)
}

func (h *hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &wsConn{conn: conn, send: make(chan []byte, 4)}
	h.register <- c

	go c.writePump()
	c.readPump(h)
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) readPump(h *hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
