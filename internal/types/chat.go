package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType discriminates the content union of a Message.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypePlaces MessageType = "Places"
)

// Message is one turn in a conversation. Content is a tagged union keyed by
// Type: markdown text or a list of map places. Messages are append-only and
// immutable once stored.
type Message struct {
	ID        uuid.UUID   `json:"id"`
	FromBot   bool        `json:"fromBot"`
	Type      MessageType `json:"type"`
	Text      string      `json:"-"`
	Places    []MapPlace  `json:"-"`
	ClientID  string      `json:"clientId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type messageWire struct {
	ID        uuid.UUID       `json:"id"`
	FromBot   bool            `json:"fromBot"`
	Type      MessageType     `json:"type"`
	Content   json.RawMessage `json:"content"`
	ClientID  string          `json:"clientId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EncodeContent serializes the active arm of the content union.
func (m Message) EncodeContent() (json.RawMessage, error) {
	switch m.Type {
	case MessageTypePlaces:
		return json.Marshal(m.Places)
	default:
		return json.Marshal(m.Text)
	}
}

// DecodeContent populates the active arm of the content union from raw JSON.
func (m *Message) DecodeContent(raw json.RawMessage) error {
	switch m.Type {
	case MessageTypePlaces:
		return json.Unmarshal(raw, &m.Places)
	default:
		return json.Unmarshal(raw, &m.Text)
	}
}

func (m Message) MarshalJSON() ([]byte, error) {
	content, err := m.EncodeContent()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message content: %w", err)
	}
	return json.Marshal(messageWire{
		ID:        m.ID,
		FromBot:   m.FromBot,
		Type:      m.Type,
		Content:   content,
		ClientID:  m.ClientID,
		Timestamp: m.Timestamp,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var wire messageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.ID = wire.ID
	m.FromBot = wire.FromBot
	m.Type = wire.Type
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	m.ClientID = wire.ClientID
	m.Timestamp = wire.Timestamp
	if len(wire.Content) == 0 {
		return nil
	}
	return m.DecodeContent(wire.Content)
}

// MapDetails is the mutable current map state of a conversation. It is
// replaced wholesale on every update, never merged field by field.
type MapDetails struct {
	Places []MapPlace      `json:"places"`
	Center Coordinates     `json:"center"`
	Zoom   int             `json:"zoom"`
	Route  json.RawMessage `json:"route,omitempty"` // GeoJSON LineString
}

// Conversation is a chat session: an append-only ordered message log plus
// the current map state.
type Conversation struct {
	ID         uuid.UUID  `json:"id"`
	Messages   []Message  `json:"messages"`
	MapDetails MapDetails `json:"mapDetails"`
	CreatedAt  time.Time  `json:"createdAt"`
}
