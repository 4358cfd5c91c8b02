package preview

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"TemplateStudio/internal/editor"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// TimeoutConfig holds the various timeout settings for WebSocket connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

const sendBuffer = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// preview is served on a local address to the user's own browser
	CheckOrigin: func(r *http.Request) bool { return true },
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub fans editor changes out to connected preview pages
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	timeouts    TimeoutConfig
	logger      *slog.Logger
	snapshot    func() string
}

// NewHub creates a hub. snapshot supplies the content sent to a page when it
// connects and may be nil.
func NewHub(logger *slog.Logger, timeouts TimeoutConfig, snapshot func() string) (*Hub, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Hub{
		subscribers: make(map[string]*subscriber),
		timeouts:    timeouts,
		logger:      logger,
		snapshot:    snapshot,
	}, nil
}

// Count returns the number of connected pages
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast queues a change for every page. Pages that cannot keep up are
// disconnected rather than slowing the sender.
func (h *Hub) Broadcast(change editor.Change) {
	msg, err := json.Marshal(change)
	if err != nil {
		h.logger.Error("failed to encode preview message", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subscribers {
		select {
		case sub.send <- msg:
		default:
			h.logger.Warn("dropping slow preview subscriber", "subscriber_id", id)
			delete(h.subscribers, id)
			sub.close()
		}
	}
}

// ServeWS upgrades the request and streams changes until the page leaves
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade preview connection", "error", err)
		return
	}

	sub := &subscriber{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	// snapshot and registration under one lock so no change falls between them
	h.mu.Lock()
	if h.snapshot != nil {
		msg, err := json.Marshal(editor.Change{Kind: editor.ChangeSnapshot, Content: h.snapshot()})
		if err == nil {
			sub.send <- msg
		}
	}
	h.subscribers[sub.id] = sub
	h.mu.Unlock()
	h.logger.Info("preview connected", "subscriber_id", sub.id, "count", h.Count())

	go h.writePump(sub)
	h.readPump(sub)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub.id]; ok {
		delete(h.subscribers, sub.id)
		sub.close()
	}
	h.mu.Unlock()
}

// readPump only tracks liveness; pages never send content
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.remove(sub)
		sub.conn.Close()
		h.logger.Info("preview disconnected", "subscriber_id", sub.id)
	}()

	sub.conn.SetReadDeadline(time.Now().Add(h.timeouts.PongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(h.timeouts.PongWait))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(h.timeouts.PingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(h.timeouts.WriteWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Warn("failed to write preview message", "subscriber_id", sub.id, "error", err)
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(h.timeouts.WriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
