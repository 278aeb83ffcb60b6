package status

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// client is one connected progress listener.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans progress events out to the connected websocket clients. Slow
// clients are dropped rather than allowed to stall the broadcast.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	quit       chan struct{}
	once       sync.Once
	logger     *slog.Logger
}

// NewHub creates a stopped hub; call Start before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *client),
		unregister: make(chan *client),
		quit:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "status.hub")),
	}
}

// Start launches the hub loop.
func (h *Hub) Start() {
	go h.run()
}

// Stop terminates the hub loop and closes every client.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.quit) })
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Debug("client registered", slog.Int("clients", len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn("dropping slow client")
				}
			}
		}
	}
}

// Broadcast sends one JSON-encoded event to every client. Marshal
// failures are logged and dropped.
func (h *Hub) Broadcast(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.quit:
	}
}

// serve pumps the hub's messages onto one websocket connection. Reads
// are drained and discarded; the feed is one-way.
func (h *Hub) serve(conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, 32)}
	select {
	case h.register <- c:
	case <-h.quit:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- c:
			case <-h.quit:
			}
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer conn.Close()
		for msg := range c.send {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}()
}
