// Package stream pushes ledger and broker events to dashboard websocket clients.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	EventSignalRouted = "signal.routed"
	EventTradeOpened  = "trade.opened"
	EventTradeClosed  = "trade.closed"
	EventBroker       = "broker"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	clientBacklog = 64
)

type Event struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	upgrader websocket.Upgrader
	log      *logrus.Entry

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log.WithField("component", "stream"),
		clients: make(map[string]*client),
	}
}

// Publish marshals data into an event and queues it for every client.
// Clients whose backlog is full are dropped.
func (h *Hub) Publish(eventType string, data interface{}) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			h.log.WithError(err).WithField("type", eventType).Error("failed to marshal stream event")
			return
		}
		raw = b
	}

	msg, err := json.Marshal(Event{
		ID:   NewEventID(),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: raw,
	})
	if err != nil {
		h.log.WithError(err).Error("failed to marshal stream envelope")
		return
	}

	var slow []*client
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.WithField("client", c.id).Warn("dropping slow stream client")
		h.remove(c)
	}
}

// PublishRaw forwards an already encoded payload, e.g. a broker hub frame.
func (h *Hub) PublishRaw(eventType string, data json.RawMessage) {
	h.Publish(eventType, data)
}

// ServeWS upgrades the request and streams events until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientBacklog),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	h.log.WithField("client", c.id).Info("stream client connected")

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.log.WithField("client", c.id).Info("stream client disconnected")
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}
