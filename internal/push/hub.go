package push

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 64
)

// Hub fans text frames out to every connected websocket subscriber.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	broadcast  chan []byte
	register   chan *subscriber
	unregister chan *subscriber
	done       chan struct{}
	count      atomic.Int64
}

type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. Run must be started before subscribers connect.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logging.OrNop(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The admin page is served from whatever address the device has.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		done:       make(chan struct{}),
	}
}

// Run dispatches broadcasts until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	subs := make(map[*subscriber]bool)
	drop := func(s *subscriber) {
		if subs[s] {
			delete(subs, s)
			close(s.send)
			h.count.Add(-1)
		}
	}

	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for s := range subs {
				drop(s)
			}
			return
		case s := <-h.register:
			subs[s] = true
			h.count.Add(1)
		case s := <-h.unregister:
			drop(s)
		case msg := <-h.broadcast:
			for s := range subs {
				select {
				case s.send <- msg:
				default:
					// Slow subscriber; it reconnects and re-reads /status.
					drop(s)
				}
			}
		}
	}
}

// Broadcast queues a text frame for every subscriber. It never blocks: when
// the queue is full the message is dropped.
func (h *Hub) Broadcast(msg string) {
	select {
	case h.broadcast <- []byte(msg):
	default:
		h.logger.Debug("push queue full, dropping message", zap.String("message", msg))
	}
}

// Subscribers returns the number of connected subscribers
func (h *Hub) Subscribers() int {
	return int(h.count.Load())
}

// ServeHTTP upgrades the request and subscribes the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	logging.LogConnection(r.RemoteAddr, "push_subscribed")

	s := &subscriber{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- s:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go s.writePump()
	go s.readPump(r.RemoteAddr)
}

// readPump only exists to process control frames and notice disconnects.
func (s *subscriber) readPump(remoteAddr string) {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		_ = s.conn.Close()
		logging.LogConnection(remoteAddr, "push_closed")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.logger.Debug("push read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
