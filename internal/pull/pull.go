// Package pull is the request/response side of the chat backend. Its data
// is treated as eventually consistent and merged with push events.
package pull

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/chatsync/internal/protocol"
)

// ErrNotFound is returned when the backend reports 404.
var ErrNotFound = errors.New("not found")

// StatusError is an unexpected HTTP status from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Conversation is a conversation as listed by the backend.
type Conversation struct {
	ID           string            `json:"id"`
	Participants []string          `json:"participants"`
	LastMessage  *protocol.Message `json:"lastMessage,omitempty"`
	UnreadCount  int               `json:"unreadCount"`
}

// ConversationList is the answer of GetConversations.
type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
	UserID        string         `json:"userId"`
}

// StartedConversation is the answer of StartConversation.
type StartedConversation struct {
	Conversation Conversation       `json:"conversation"`
	Messages     []protocol.Message `json:"messages"`
}

// Puller is the pull layer used by the hub.
type Puller interface {
	GetConversations(ctx context.Context) (ConversationList, error)
	GetMessages(ctx context.Context, conversationID string) ([]protocol.Message, error)
	StartConversation(ctx context.Context, targetUserID string) (StartedConversation, error)
	EditMessage(ctx context.Context, messageID, content string) (protocol.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	DeleteConversation(ctx context.Context, conversationID string) error
}
