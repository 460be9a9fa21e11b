package ws

import (
	"encoding/json"
	"sync"

	"rewards_webapp/internal/logger"
)

// HandlerFunc handles one inbound message type for a user
type HandlerFunc func(userID string, payload json.RawMessage)

// Hub keeps every open socket per user, a user may have several tabs open
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}

	handlers  map[string]HandlerFunc
	onConnect []func(userID string)
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers a handler for a client message type. Call before serving.
func (h *Hub) Handle(msgType string, fn HandlerFunc) {
	h.handlers[msgType] = fn
}

// OnConnect registers a callback run after a socket is ready
func (h *Hub) OnConnect(fn func(userID string)) {
	h.onConnect = append(h.onConnect, fn)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	logger.Debug("ws client registered", "user_id", c.UserID)
	for _, fn := range h.onConnect {
		fn(c.UserID)
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	logger.Debug("ws client unregistered", "user_id", c.UserID)
}

// Push sends a message to every socket of the user and returns how many got it
func (h *Hub) Push(userID, msgType string, payload any) int {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		logger.Error("ws marshal failed", "type", msgType, "error", err)
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if c.enqueue(data) {
			n++
		}
	}
	return n
}

// Connected reports whether the user has at least one open socket
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) dispatch(c *Client, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Debug("ws bad message", "user_id", c.UserID, "error", err)
		return
	}

	if msg.Type == MsgPing {
		data, _ := json.Marshal(Message{Type: MsgPong})
		c.enqueue(data)
		return
	}

	fn, ok := h.handlers[msg.Type]
	if !ok {
		logger.Debug("ws unknown message type", "user_id", c.UserID, "type", msg.Type)
		return
	}
	fn(c.UserID, msg.Payload)
}
