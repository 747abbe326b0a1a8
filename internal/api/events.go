package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/notes"
	"github.com/kalambet/notebook/internal/pomodoro"
	"github.com/kalambet/notebook/internal/projects"
	"github.com/kalambet/notebook/internal/tags"
	"github.com/kalambet/notebook/internal/tasks"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 << 10

	sendBuffer = 64
)

// Event is one websocket frame: a store name and its new collection.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	pong chan struct{}
}

// Hub fans store changes out to every connected websocket client.
type Hub struct {
	upgrader   websocket.Upgrader
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	logger     *slog.Logger
}

// NewHub returns a hub accepting upgrades from allowedOrigins. An empty list
// or "*" accepts every origin.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		logger:     slog.Default(),
	}
}

// originChecker matches the Origin header against allowed. Requests without
// an Origin header and same-host requests always pass.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Run delivers published events until ctx is cancelled, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Debug("websocket client connected", "remote", c.conn.RemoteAddr().String())
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
					h.logger.Warn("websocket client too slow, dropping", "remote", c.conn.RemoteAddr().String())
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// Publish queues ev for every client. It never blocks; events are dropped
// when the queue is full.
func (h *Hub) Publish(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("encoding event failed", "type", ev.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("event queue full, dropping", "type", ev.Type)
	}
}

// Watch publishes every state change of the app's stores. The returned
// function stops watching.
func (h *Hub) Watch(a *app.App) (stop func()) {
	unsubs := []func(){
		a.Notes.Subscribe(func(st notes.State) {
			h.Publish(Event{Type: notes.Key, Data: st.Notes})
		}),
		a.Tasks.Subscribe(func(st tasks.State) {
			h.Publish(Event{Type: tasks.Key, Data: st.Tasks})
		}),
		a.Projects.Subscribe(func(st projects.State) {
			h.Publish(Event{Type: projects.Key, Data: st.Projects})
		}),
		a.Tags.Subscribe(func(st tags.State) {
			h.Publish(Event{Type: tags.Key, Data: st.Tags})
		}),
		a.Pomodoro.Subscribe(func(st pomodoro.State) {
			h.Publish(Event{Type: pomodoro.Key, Data: timerView{
				Current:       st.Current,
				Running:       st.Running,
				TimeRemaining: st.TimeRemaining,
				Settings:      st.Settings,
			}})
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer), pong: make(chan struct{}, 1)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump answers pings and detects disconnects. Clients have nothing else
// to say.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil || ev.Type != "ping" {
			continue
		}
		select {
		case c.pong <- struct{}{}:
		default:
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.pong:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(Event{Type: "pong", Data: map[string]string{"timestamp": time.Now().UTC().Format(time.RFC3339)}}); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
