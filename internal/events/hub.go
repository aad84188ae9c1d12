package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/techoutagebot/audiofeed/internal/feed"
	"github.com/techoutagebot/audiofeed/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	subscriberSize = 64 // Messages buffered per subscriber before dropping
)

var upgrader = websocket.Upgrader{
	// Dashboards are served from other origins
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Message is the JSON form of a feed event sent to subscribers
type Message struct {
	Type   feed.EventType `json:"type"`
	State  string         `json:"state"`
	ClipID string         `json:"clip_id,omitempty"`
	Path   string         `json:"path,omitempty"`
	Source string         `json:"source,omitempty"`
	Bytes  int64          `json:"bytes,omitempty"`
	Error  string         `json:"error,omitempty"`
	Time   time.Time      `json:"time"`
}

// NewMessage converts a feed event into its wire form
func NewMessage(e feed.Event) Message {
	m := Message{
		Type:  e.Type,
		State: e.State.String(),
		Bytes: e.Bytes,
		Time:  e.Time,
	}
	if e.Entry != nil {
		m.ClipID = e.Entry.ID
		m.Path = e.Entry.Path
		m.Source = e.Entry.Source
	}
	if e.Err != nil {
		m.Error = e.Err.Error()
	}
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	return m
}

type subscriber struct {
	send chan []byte
	done chan struct{}
}

// Hub fans feed events out to websocket subscribers. Slow subscribers have
// messages dropped rather than holding up the writer.
type Hub struct {
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

// NewHub creates a hub with no subscribers
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:      logger,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Observe implements feed.Observer
func (h *Hub) Observe(e feed.Event) {
	payload, err := json.Marshal(NewMessage(e))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subscribers {
		select {
		case s.send <- payload:
		default:
			h.logger.Debug().Str("type", string(e.Type)).Msg("Subscriber too slow, dropping event")
		}
	}
}

// SubscriberCount returns the number of connected subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		close(s.done)
	}
	observability.SetEventSubscribers(0)
}

func (h *Hub) subscribe() *subscriber {
	s := &subscriber{
		send: make(chan []byte, subscriberSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()

	observability.SetEventSubscribers(n)
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[s]
	delete(h.subscribers, s)
	n := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		close(s.done)
		observability.SetEventSubscribers(n)
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	sub := h.subscribe()
	logger := h.logger.With().Str("remote_addr", r.RemoteAddr).Logger()
	logger.Info().Msg("Event subscriber connected")

	go h.readPump(conn, sub)
	h.writePump(conn, sub)

	h.unsubscribe(sub)
	conn.Close()
	logger.Info().Msg("Event subscriber disconnected")
}

// readPump discards client messages and notices when the client goes away
func (h *Hub) readPump(conn *websocket.Conn, sub *subscriber) {
	defer h.unsubscribe(sub)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
