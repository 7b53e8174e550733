// Package broadcast is an optional WebSocket fan-out of task events, for
// callers that want live progress in a browser instead of (or alongside)
// the terminal progress bar.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
)

// Message is one JSON frame sent to every connected client.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of connected clients and fans out Messages to
// all of them.
type Hub struct {
	mu         sync.Mutex
	clients    map[*client]struct{}
	nextID     uint64
	broadcast  chan Message
	register   chan *client
	unregister chan *client
}

type client struct {
	id   uint64
	conn *websocket.Conn
	send chan Message
}

// NewHub returns an idle Hub. Call Run to start fanning out messages.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Broadcast enqueues a message for delivery to every connected client.
// It never blocks: a full broadcast buffer drops the message.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// Run drives client registration and message fan-out until done is
// closed.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.drop(c)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// deliver sends msg to every client in a stable (ID) order, dropping any
// client whose send buffer is full.
func (h *Hub) deliver(msg Message) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeHTTP upgrades the request to a WebSocket connection and registers
// it with the hub until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.nextID++
	c := &client{id: h.nextID, conn: conn, send: make(chan Message, 32)}
	h.mu.Unlock()

	h.register <- c
	defer func() {
		h.unregister <- c
		conn.Close()
	}()

	for msg := range c.send {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
