package api

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/chatsync/internal/hub"
	"github.com/matheus3301/chatsync/internal/presence"
	"github.com/matheus3301/chatsync/internal/search"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/window"
	"github.com/samber/lo"
)

type Empty struct{}

type Message struct {
	ID              string   `json:"id"`
	ClientID        string   `json:"clientId,omitempty"`
	ConversationID  string   `json:"conversationId"`
	Sender          string   `json:"sender"`
	Content         string   `json:"content"`
	CreatedAtUnixMs int64    `json:"createdAtUnixMs"`
	EditedAtUnixMs  int64    `json:"editedAtUnixMs,omitempty"`
	Status          string   `json:"status"`
	ReadBy          []string `json:"readBy,omitempty"`
}

type Conversation struct {
	ID                 string   `json:"id"`
	Participants       []string `json:"participants"`
	LastMessage        *Message `json:"lastMessage,omitempty"`
	LastActivityUnixMs int64    `json:"lastActivityUnixMs,omitempty"`
	Unread             int      `json:"unread"`
	Open               bool     `json:"open"`
	Typers             []string `json:"typers,omitempty"`
}

type Window struct {
	ConversationID string `json:"conversationId"`
	Minimized      bool   `json:"minimized"`
	Active         bool   `json:"active"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Session          string `json:"session"`
	State            string `json:"state"`
	StateSinceUnixMs int64  `json:"stateSinceUnixMs"`
	UptimeMs         int64  `json:"uptimeMs"`
	UserID           string `json:"userId"`
	Conversations    int    `json:"conversations"`
	UnreadTotal      int    `json:"unreadTotal"`
	OpenWindows      int    `json:"openWindows"`
	Outbox           int    `json:"outbox"`
}

type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	UnreadTotal   int            `json:"unreadTotal"`
}

type ListMessagesRequest struct {
	ConversationID string `json:"conversationId"`
	Filter         string `json:"filter,omitempty"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type ResendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	ClientID       string `json:"clientId"`
}

type EditMessageRequest struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Content        string `json:"content"`
}

type DeleteMessageRequest struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type MessageResponse struct {
	Message Message `json:"message"`
}

type StartConversationRequest struct {
	TargetUserID string `json:"targetUserId"`
}

type ConversationResponse struct {
	Conversation Conversation `json:"conversation"`
}

// ConversationRequest addresses one conversation (delete, window operations,
// typing).
type ConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

type WindowsResponse struct {
	Windows  []Window `json:"windows"`
	Active   string   `json:"active,omitempty"`
	Capacity int      `json:"capacity"`
	Evicted  string   `json:"evicted,omitempty"`
}

type SetVisibilityRequest struct {
	Visible bool `json:"visible"`
}

type GetPresenceRequest struct {
	UserID string `json:"userId"`
}

type PresenceResponse struct {
	UserID           string `json:"userId"`
	Online           bool   `json:"online"`
	Known            bool   `json:"known"`
	LastSeenAtUnixMs int64  `json:"lastSeenAtUnixMs,omitempty"`
}

type SearchRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversationId,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type SearchResult struct {
	ConversationID  string `json:"conversationId"`
	MessageID       string `json:"messageId"`
	Sender          string `json:"sender"`
	Snippet         string `json:"snippet"`
	CreatedAtUnixMs int64  `json:"createdAtUnixMs"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

type WatchEventsRequest struct {
	// Prefix filters bus kinds, e.g. "message." ("" watches everything).
	Prefix string `json:"prefix,omitempty"`
}

// Event is one bus event as streamed to clients.
type Event struct {
	EventID          string          `json:"eventId"`
	Session          string          `json:"session"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurredAtUnixMs"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// MessageEvent is the payload of message.* events.
type MessageEvent struct {
	ConversationID string  `json:"conversationId"`
	PreviousID     string  `json:"previousId,omitempty"`
	Message        Message `json:"message"`
}

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func toMessage(m store.Message) Message {
	return Message{
		ID:              m.ID,
		ClientID:        m.ClientID,
		ConversationID:  m.ConversationID,
		Sender:          m.Sender,
		Content:         m.Content,
		CreatedAtUnixMs: unixMs(m.CreatedAt),
		EditedAtUnixMs:  unixMs(m.EditedAt),
		Status:          string(m.Status()),
		ReadBy:          m.ReadBy.Slice(),
	}
}

func toMessages(ms []store.Message) []Message {
	return lo.Map(ms, func(m store.Message, _ int) Message { return toMessage(m) })
}

func toConversation(c store.Conversation) Conversation {
	out := Conversation{
		ID:                 c.ID,
		Participants:       c.Participants.Slice(),
		LastActivityUnixMs: unixMs(c.LastActivity()),
		Unread:             c.UnreadCount,
	}
	if c.LastMessage != nil {
		last := toMessage(*c.LastMessage)
		out.LastMessage = &last
	}
	return out
}

func toConversationView(v hub.ConversationView) Conversation {
	out := toConversation(v.Conversation)
	out.Unread = v.Unread
	out.Open = v.Open
	out.Typers = v.Typers
	return out
}

func toWindows(ws []window.Window, active string) []Window {
	return lo.Map(ws, func(w window.Window, _ int) Window {
		return Window{ConversationID: w.ConversationID, Minimized: w.Minimized, Active: w.ConversationID == active}
	})
}

func toPresence(e presence.Entry) PresenceResponse {
	return PresenceResponse{
		UserID:           e.UserID,
		Online:           e.Online,
		Known:            e.Known,
		LastSeenAtUnixMs: unixMs(e.LastSeenAt),
	}
}

func toSearchResults(rs []search.Result) []SearchResult {
	return lo.Map(rs, func(r search.Result, _ int) SearchResult {
		return SearchResult{
			ConversationID:  r.ConversationID,
			MessageID:       r.MessageID,
			Sender:          r.Sender,
			Snippet:         r.Snippet,
			CreatedAtUnixMs: unixMs(r.CreatedAt),
		}
	})
}

// eventPayload converts bus payloads that do not marshal cleanly into their
// wire form.
func eventPayload(payload any) any {
	switch p := payload.(type) {
	case store.MessageChange:
		return MessageEvent{ConversationID: p.ConversationID, PreviousID: p.PreviousID, Message: toMessage(p.Message)}
	case store.Conversation:
		return toConversation(p)
	case presence.Entry:
		return toPresence(p)
	case hub.WindowChange:
		return WindowsResponse{Windows: toWindows(p.Windows, p.Active), Active: p.Active, Evicted: p.Evicted}
	}
	return payload
}
