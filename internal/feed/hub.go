package feed

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"jumptrainer/internal/observability"
)

// Hub fans snapshot frames out to websocket clients. Run is the only writer
// to any connection.
type Hub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	register  chan *websocket.Conn
	remove    chan *websocket.Conn
	broadcast chan []byte
	done      chan struct{}
	initial   func() ([]byte, error)
	logger    *zap.Logger
}

// NewHub creates a hub. initial renders the frame sent to each new client.
func NewHub(initial func() ([]byte, error), logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		register:  make(chan *websocket.Conn),
		remove:    make(chan *websocket.Conn),
		broadcast: make(chan []byte, 16),
		done:      make(chan struct{}),
		initial:   initial,
		logger:    logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer observability.Recover()
	defer func() {
		for conn := range h.clients {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			conn.Close()
		}
		h.clients = map[*websocket.Conn]bool{}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case conn := <-h.register:
			h.clients[conn] = true
			if h.initial == nil {
				continue
			}
			data, err := h.initial()
			if err != nil {
				h.logger.Error("render initial frame", zap.Error(err))
				continue
			}
			h.send(conn, data)
		case conn := <-h.remove:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		case msg := <-h.broadcast:
			for conn := range h.clients {
				h.send(conn, msg)
			}
		}
	}
}

func (h *Hub) send(conn *websocket.Conn, data []byte) {
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn("drop websocket client", zap.Error(err))
		delete(h.clients, conn)
		conn.Close()
	}
}

// Broadcast queues a frame for every client. It returns without sending once
// the hub has stopped.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// Serve upgrades the request and reads client messages until the connection
// closes. Each message is passed to onMessage.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, onMessage func([]byte)) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}
	defer func() {
		select {
		case h.remove <- conn:
		case <-h.done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read", zap.Error(err))
			}
			return
		}
		if onMessage != nil {
			onMessage(message)
		}
	}
}
