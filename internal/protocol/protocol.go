// Package protocol defines the JSON frames exchanged over the push channel.
//
// Every frame is an envelope {"type": "...", "data": {...}}. Inbound frames
// decode to an Event whose Payload is one of the typed structs below;
// outbound frames are built from a Command.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// EventType is the discriminator of an inbound frame.
type EventType string

const (
	EventNewMessage EventType = "new_message"
	EventSeen       EventType = "seen"
	EventChatAlert  EventType = "chat_alert"
	EventPresence   EventType = "presence"
	EventTyping     EventType = "typing"
	EventError      EventType = "error"
)

// CommandType is the discriminator of an outbound frame.
type CommandType string

const (
	CmdJoinConversations CommandType = "join_conversations"
	CmdSendMessage       CommandType = "send_message"
	CmdMarkAsRead        CommandType = "mark_as_read"
	CmdStartTyping       CommandType = "start_typing"
	CmdStopTyping        CommandType = "stop_typing"
	CmdToggleVisibility  CommandType = "toggle_visibility"
)

// CodeUnauthenticated is the error code the server uses to reject a credential.
const CodeUnauthenticated = "unauthenticated"

// ErrMalformed wraps every decoding or validation failure of an inbound frame.
var ErrMalformed = errors.New("malformed frame")

var validate = validator.New()

// Envelope is the outer JSON shape of every frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is a chat message as carried on the wire and by the pull layer.
type Message struct {
	ID             string    `json:"id" validate:"required"`
	ConversationID string    `json:"conversationId,omitempty"`
	Sender         string    `json:"sender" validate:"required"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	ReadBy         []string  `json:"readBy,omitempty"`
	Edited         bool      `json:"edited,omitempty"`
	Deleted        bool      `json:"deleted,omitempty"`
}

type NewMessage struct {
	ConversationID string  `json:"conversationId" validate:"required"`
	Message        Message `json:"message"`
}

type Seen struct {
	ConversationID string `json:"conversationId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
}

type ChatAlert struct {
	ConversationID string `json:"conversationId" validate:"required"`
	FromUser       string `json:"fromUser"`
}

type Presence struct {
	UserID     string    `json:"userId" validate:"required"`
	Online     bool      `json:"online"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

type Typing struct {
	ConversationID string `json:"conversationId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
	IsTyping       bool   `json:"isTyping"`
}

type Error struct {
	Code    string `json:"code" validate:"required"`
	Message string `json:"message"`
}

// Event is a decoded inbound frame. Payload holds the value type matching
// Type (NewMessage, Seen, ChatAlert, Presence, Typing or Error).
type Event struct {
	Type    EventType
	Payload any
}

// ConversationID returns the room an event is scoped to, or "" for
// user-scoped events such as presence.
func (e Event) ConversationID() string {
	switch p := e.Payload.(type) {
	case NewMessage:
		return p.ConversationID
	case Seen:
		return p.ConversationID
	case ChatAlert:
		return p.ConversationID
	case Typing:
		return p.ConversationID
	}
	return ""
}

// IsUnauthenticated reports whether the event is the server rejecting the
// credential of the current channel.
func (e Event) IsUnauthenticated() bool {
	p, ok := e.Payload.(Error)
	return ok && e.Type == EventError && p.Code == CodeUnauthenticated
}

// ParseEvent decodes and validates one inbound frame.
func ParseEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var payload any
	var err error
	switch EventType(env.Type) {
	case EventNewMessage:
		payload, err = decode[NewMessage](env.Data)
	case EventSeen:
		payload, err = decode[Seen](env.Data)
	case EventChatAlert:
		payload, err = decode[ChatAlert](env.Data)
	case EventPresence:
		payload, err = decode[Presence](env.Data)
	case EventTyping:
		payload, err = decode[Typing](env.Data)
	case EventError:
		payload, err = decode[Error](env.Data)
	default:
		return Event{}, fmt.Errorf("%w: unknown event type %q", ErrMalformed, env.Type)
	}
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return Event{Type: EventType(env.Type), Payload: payload}, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, errors.New("missing data")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	if err := validate.Struct(v); err != nil {
		return v, err
	}
	return v, nil
}

// EncodeEvent builds the wire form of an event. The daemon's test servers
// and the NATS transport use it to produce frames.
func EncodeEvent(t EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", t, err)
	}
	return json.Marshal(Envelope{Type: string(t), Data: data})
}
