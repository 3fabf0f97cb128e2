package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/saartech/quattropole-assistant/internal/types"
)

// Socket event names exchanged with browser clients.
const (
	eventJoinConversation   = "joinConversation"
	eventJoinedConversation = "joinedConversation"
	eventClientMessage      = "clientMessage"
	eventErrorMessage       = "errorMessage"
	eventWarningMessage     = "warningMessage"

	clientMessageTypeUserText = "userTextMessage"
)

// Event is the envelope for every socket frame, inbound and outbound.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	ConversationID string `json:"conversationId"`
}

type clientMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	ClientID       string `json:"clientId,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one connected socket. Writes are serialized with a mutex since
// gorilla permits a single concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(Event{Event: event, Data: data})
}

// Hub tracks which sockets subscribed to which conversation and fans
// broadcasts out to them. A socket may join any number of conversations
// over its lifetime.
type Hub struct {
	logger  *slog.Logger
	service Service

	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*client]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		rooms:  make(map[uuid.UUID]map[*client]struct{}),
	}
}

// BindService wires the conversation service after construction. The hub and
// the service reference each other, so one side has to be bound late.
func (h *Hub) BindService(service Service) {
	h.service = service
}

func (h *Hub) join(conversationID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[conversationID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.rooms {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, id)
		}
	}
}

// Broadcast sends the event to every socket subscribed to the conversation.
// Send failures only log; the read loop of the broken socket cleans it up.
func (h *Hub) Broadcast(conversationID uuid.UUID, event string, payload any) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(event, payload); err != nil {
			h.logger.Warn("Failed to broadcast event",
				slog.String("event", event),
				slog.String("conversationID", conversationID.String()),
				slog.Any("error", err))
		}
	}
}

// ServeWS upgrades the request and runs the socket's read loop until the
// client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed",
			slog.String("remoteAddr", r.RemoteAddr), slog.Any("error", err))
		return
	}
	h.logger.Debug("WebSocket connected", slog.String("remoteAddr", r.RemoteAddr))

	c := &client{conn: conn}
	defer func() {
		h.remove(c)
		conn.Close()
		h.logger.Debug("WebSocket disconnected", slog.String("remoteAddr", r.RemoteAddr))
	}()

	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read failed",
					slog.String("remoteAddr", r.RemoteAddr), slog.Any("error", err))
			}
			return
		}
		h.dispatch(c, event)
	}
}

func (h *Hub) dispatch(c *client, event Event) {
	switch event.Event {
	case eventJoinConversation:
		h.handleJoin(c, event.Data)
	case eventClientMessage:
		h.handleClientMessage(c, event.Data)
	default:
		h.sendWarning(c, fmt.Sprintf("Event '%s' is not handled.", event.Event))
	}
}

func (h *Hub) handleJoin(c *client, data json.RawMessage) {
	var payload joinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(c, "Invalid joinConversation payload.")
		return
	}
	conversationID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		h.sendError(c, "A valid conversation ID is required.")
		return
	}
	if _, err := h.service.GetConversation(context.Background(), conversationID); err != nil {
		if errors.Is(err, types.ErrConversationNotFound) {
			h.sendError(c, "Conversation not found.")
		} else {
			h.sendError(c, "Error joining conversation.")
		}
		return
	}

	h.join(conversationID, c)
	if err := c.send(eventJoinedConversation, payload.ConversationID); err != nil {
		h.logger.Warn("Failed to confirm join", slog.Any("error", err))
	}
}

func (h *Hub) handleClientMessage(c *client, data json.RawMessage) {
	var payload clientMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(c, "Invalid clientMessage payload.")
		return
	}
	if payload.ConversationID == "" || payload.Content == "" {
		h.sendError(c, "Conversation ID and content are required.")
		return
	}
	conversationID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		h.sendError(c, "A valid conversation ID is required.")
		return
	}
	if payload.Type != clientMessageTypeUserText {
		h.sendWarning(c, fmt.Sprintf("Message type '%s' is not handled.", payload.Type))
		return
	}

	// A turn spans two model calls, so it runs off the read loop. The
	// request context dies with the socket; the turn should not.
	go func() {
		if err := h.service.HandleUserMessage(context.Background(), conversationID, payload.Content, payload.ClientID); err != nil {
			h.logger.Error("Failed to handle client message",
				slog.String("conversationID", conversationID.String()),
				slog.Any("error", err))
			// The failure detail stays in the log; clients get a fixed line.
			if errors.Is(err, types.ErrConversationNotFound) {
				h.sendError(c, "Conversation not found.")
				return
			}
			h.sendError(c, "Error processing your message. Please try again.")
		}
	}()
}

func (h *Hub) sendError(c *client, message string) {
	if err := c.send(eventErrorMessage, errorPayload{Message: message}); err != nil {
		h.logger.Warn("Failed to send error message", slog.Any("error", err))
	}
}

func (h *Hub) sendWarning(c *client, message string) {
	if err := c.send(eventWarningMessage, errorPayload{Message: message}); err != nil {
		h.logger.Warn("Failed to send warning message", slog.Any("error", err))
	}
}
