package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// MaxStreamClients bounds concurrent spectators.
const MaxStreamClients = 32

// Frame types pushed to spectators.
const (
	FrameObservation = "observation"
)

// Frame is one stream message.
type Frame struct {
	Type    string `json:"type"`
	Tick    uint64 `json:"tick"`
	Payload any    `json:"payload"`
}

const writeWait = 10 * time.Second

// client is one connected spectator.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte // buffered outbound frames
	hello []byte      // first frame, queued on registration
}

// Hub maintains the set of spectators and fans frames out to them. Slow
// spectators whose buffer is full are dropped.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	count      atomic.Int32
	dropped    atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Len is the number of connected spectators.
func (h *Hub) Len() int { return int(h.count.Load()) }

// Dropped counts frames discarded because the hub was backed up.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Broadcast queues a frame for every spectator without blocking. It is
// called from tick hooks, so a backed-up hub drops the frame.
func (h *Hub) Broadcast(frame []byte) {
	select {
	case h.broadcast <- frame:
	default:
		h.dropped.Add(1)
	}
}

// Run fans frames out until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(0)
			return
		case c := <-h.register:
			h.clients[c] = true
			h.count.Add(1)
			if c.hello != nil {
				c.send <- c.hello
			}
			slog.Info("stream client connected", "remote", c.conn.RemoteAddr().String(), "clients", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				h.count.Add(-1)
				close(c.send)
				slog.Info("stream client disconnected", "remote", c.conn.RemoteAddr().String(), "clients", len(h.clients))
			}
		case frame := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- frame:
				default:
					close(c.send)
					delete(h.clients, c)
					h.count.Add(-1)
					slog.Warn("stream client too slow, dropped", "remote", c.conn.RemoteAddr().String())
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers a spectator. hello, when
// set, is the first frame the spectator receives.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, hello []byte) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, 64), hello: hello}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only watches for the spectator going away; input is ignored.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	// Range stops when the hub closes c.send.
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
