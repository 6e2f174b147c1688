// Package statefeed broadcasts the voice pipeline's state to websocket
// clients, so any renderer can show the current state, transcript and
// error banner.
package statefeed

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/gita-voice-lab/internal/convo"
	"github.com/gita-voice-lab/internal/logging"
	"github.com/gita-voice-lab/internal/voice"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 16
)

// Event is the JSON message sent for every state change.
type Event struct {
	State         string       `json:"state"`
	Language      string       `json:"language"`
	Transcript    []convo.Turn `json:"transcript"`
	Error         string       `json:"error,omitempty"`
	ErrorStage    string       `json:"error_stage,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
}

func FromSnapshot(s voice.Snapshot) Event {
	ev := Event{
		State:         s.State.String(),
		Language:      s.Language.String(),
		Transcript:    s.Transcript,
		CorrelationID: s.CorrelationID,
	}
	if ev.Transcript == nil {
		ev.Transcript = []convo.Turn{}
	}
	if s.LastError != nil {
		ev.Error = s.LastError.Message()
		ev.ErrorStage = string(s.LastError.Stage)
	}
	return ev
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub fans events out to connected clients. A client that falls behind by
// more than sendBuffer events is disconnected.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*client]struct{}),
	}
}

// Publish sends snap to every client. It matches voice.Orchestrator's
// Subscribe callback.
func (h *Hub) Publish(snap voice.Snapshot) {
	b, err := sonic.Marshal(FromSnapshot(snap))
	if err != nil {
		logging.Warnw("statefeed: encode event", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last = b
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			logging.Warnw("statefeed: dropping slow client", "remote", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			c.close()
		}
	}
}

// ServeHTTP upgrades the request and streams events until the client goes
// away. The latest event is sent on connect.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debugw("statefeed: upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	if h.last != nil {
		c.send <- h.last
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	logging.Debugw("statefeed: client connected", "remote", conn.RemoteAddr().String(), "clients", n)

	go h.write(c)
	// Reads only detect the peer closing; incoming messages are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *Hub) write(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
