// Package streaming fans conversation events out to WebSocket clients.
// Clients subscribe to conversation ids; the hub relays matching events
// from the bus.
package streaming

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/consilio/consilio/internal/common/logger"
	"github.com/consilio/consilio/internal/events"
	"github.com/consilio/consilio/internal/events/bus"
)

// Hub tracks connected clients and their conversation subscriptions
type Hub struct {
	mu             sync.RWMutex
	clients        map[*Client]bool
	byConversation map[string]map[*Client]bool

	eventBus bus.EventBus
	sub      bus.Subscription
	logger   *logger.Logger
}

// NewHub creates a hub and subscribes it to conversation events
func NewHub(eventBus bus.EventBus, log *logger.Logger) (*Hub, error) {
	h := &Hub{
		clients:        make(map[*Client]bool),
		byConversation: make(map[string]map[*Client]bool),
		eventBus:       eventBus,
		logger:         log.WithFields(zap.String("component", "streaming-hub")),
	}

	sub, err := eventBus.Subscribe(events.ConversationSubjects, h.handleEvent)
	if err != nil {
		return nil, err
	}
	h.sub = sub
	return h, nil
}

// Register adds a client to the hub
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

// Unregister removes a client and all its subscriptions
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	for convID, clients := range h.byConversation {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.byConversation, convID)
		}
	}
	c.closeSend()
}

// SubscribeClient subscribes a client to one conversation
func (h *Hub) SubscribeClient(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.byConversation[conversationID] == nil {
		h.byConversation[conversationID] = make(map[*Client]bool)
	}
	h.byConversation[conversationID][c] = true
}

// UnsubscribeClient removes a client's subscription to one conversation
func (h *Hub) UnsubscribeClient(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients := h.byConversation[conversationID]; clients != nil {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.byConversation, conversationID)
		}
	}
}

// StopAll disconnects every client and drops the bus subscription
func (h *Hub) StopAll() {
	if h.sub != nil {
		_ = h.sub.Unsubscribe()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.closeSend()
	}
	h.byConversation = make(map[string]map[*Client]bool)
}

// handleEvent relays one bus event to the clients watching its conversation
func (h *Hub) handleEvent(event *bus.Event) {
	convID, _ := event.Data["conversation_id"].(string)
	if convID == "" {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to marshal event for streaming", zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.byConversation[convID]))
	for c := range h.byConversation[convID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.Send(payload) {
			h.logger.Debug("dropping event for slow client",
				zap.String("conversation_id", convID))
		}
	}
}
