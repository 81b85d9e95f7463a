package hub

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/conn"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/pull"
	"github.com/matheus3301/chatsync/internal/store"
	chatsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/window"
	"go.uber.org/zap"
)

// UnreadChange is the payload of unread.changed.
type UnreadChange struct {
	ConversationID string `json:"conversationId"`
	Count          int    `json:"count"`
	Total          int    `json:"total"`
}

// ReceiptChange is the payload of receipt.seen.
type ReceiptChange struct {
	ConversationID string   `json:"conversationId"`
	UserID         string   `json:"userId"`
	MessageIDs     []string `json:"messageIds"`
}

// TypingChange is the payload of typing.changed.
type TypingChange struct {
	ConversationID string   `json:"conversationId"`
	Typers         []string `json:"typers"`
}

// WindowChange is the payload of window.changed.
type WindowChange struct {
	Windows []window.Window
	Active  string
	Evicted string
}

func (h *Hub) handleEvent(evt protocol.Event) {
	switch p := evt.Payload.(type) {
	case protocol.NewMessage:
		h.onNewMessage(p)
	case protocol.Seen:
		h.onSeen(p)
	case protocol.ChatAlert:
		h.onChatAlert(p)
	case protocol.Presence:
		if h.presence.Apply(p.UserID, p.Online, p.LastSeenAt) {
			h.publish(bus.KindPresenceChanged, h.presence.Get(p.UserID))
		}
	case protocol.Typing:
		h.onTyping(p)
	default:
		h.logger.Debug("event ignored", zap.String("type", string(evt.Type)))
	}
}

func (h *Hub) handleLifecycle(l conn.Lifecycle) {
	switch l.Kind {
	case conn.Connected:
		// Presence is rebuilt from the new session's events.
		h.presence.Reset()
		h.flush()
		h.logger.Info("session ready",
			zap.Int("attempt", l.Attempt),
			zap.Int("rooms", len(l.Rooms)))
	case conn.Disconnected:
		h.logger.Info("session lost", zap.Error(l.Err))
	}
}

func (h *Hub) onNewMessage(p protocol.NewMessage) {
	known := h.store.HasConversation(p.ConversationID)
	msg := chatsync.FromWire(p.ConversationID, p.Message)
	h.apply(h.recon.Confirm(msg), true)
	if !known {
		h.publishConversation(p.ConversationID)
	}
}

// apply publishes the effect of one reconciliation. live is true for push
// events and false for pull-layer history, which never counts as unread.
func (h *Hub) apply(res chatsync.Result, live bool) {
	metrics.Reconciliations.WithLabelValues(res.Outcome.String()).Inc()
	conv := res.Message.ConversationID

	msg := res.Message
	if m, ok := h.receipts.Refresh(conv, msg.ID); ok {
		msg = m
	}
	change := store.MessageChange{ConversationID: conv, Message: msg, PreviousID: res.PreviousID}

	switch res.Outcome {
	case chatsync.Duplicate:
		if res.Changed {
			h.publish(bus.KindMessageUpserted, change)
		}
		return
	case chatsync.Matched:
		h.outbox.Ack(res.PreviousID)
		if !res.PendingSince.IsZero() {
			metrics.ConfirmLatency.Observe(h.now().Sub(res.PendingSince).Seconds())
		}
		h.publish(bus.KindMessageReplaced, change)
	case chatsync.Appended:
		h.publish(bus.KindMessageUpserted, change)
		if live && h.unread.Increment(conv, msg.Sender) {
			h.publishUnread(conv)
		}
	}

	if live && msg.Sender != h.self {
		if h.typing.Stop(conv, msg.Sender) {
			h.publishTyping(conv)
		}
		h.acknowledge(conv)
	}
}

// acknowledge marks the conversation read when its window is focused and
// visible and its history is loaded and not empty.
func (h *Hub) acknowledge(conv string) {
	if !h.windows.CanAcknowledge(conv) || !h.loaded[conv] || h.store.Len(conv) == 0 {
		return
	}
	_ = h.send(protocol.MarkAsRead(conv))
	if h.unread.Focus(conv, true) {
		h.publishUnread(conv)
	}
}

func (h *Hub) onSeen(p protocol.Seen) {
	changed := h.receipts.ApplySeen(p.ConversationID, p.UserID, h.now())
	if len(changed) > 0 {
		ids := make([]string, len(changed))
		for i, m := range changed {
			ids[i] = m.ID
		}
		h.publish(bus.KindReceiptSeen, ReceiptChange{
			ConversationID: p.ConversationID,
			UserID:         p.UserID,
			MessageIDs:     ids,
		})
	}
	if p.UserID == h.self && h.unread.ClearFromReceipt(p.ConversationID) {
		h.publishUnread(p.ConversationID)
	}
}

func (h *Hub) onChatAlert(p protocol.ChatAlert) {
	if h.store.HasConversation(p.ConversationID) {
		h.logger.Debug("alert for known conversation ignored",
			zap.String("conversation_id", p.ConversationID))
		return
	}
	h.store.UpsertConversation(store.Conversation{
		ID:           p.ConversationID,
		Participants: store.NewUserSet(p.FromUser),
	})
	h.publishConversation(p.ConversationID)
	if p.FromUser != h.self && h.unread.Increment(p.ConversationID, p.FromUser) {
		h.publishUnread(p.ConversationID)
	}
	_ = h.send(protocol.Join([]string{p.ConversationID}))

	// The registry entry above is a stub; the conversation list fills in
	// participants and the last message.
	go h.refreshConversations()
}

func (h *Hub) refreshConversations() {
	ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
	defer cancel()
	list, err := h.puller.GetConversations(ctx)
	if err != nil {
		h.logger.Warn("refresh conversations", zap.Error(err))
		return
	}
	h.post(func() { h.hydrateConversations(list) })
}

func (h *Hub) onTyping(p protocol.Typing) {
	if p.UserID == h.self {
		return
	}
	var changed bool
	if p.IsTyping {
		changed = h.typing.Start(p.ConversationID, p.UserID, h.now())
	} else {
		changed = h.typing.Stop(p.ConversationID, p.UserID)
	}
	if changed {
		h.publishTyping(p.ConversationID)
	}
}

// hydrateConversations merges a conversation list from the pull layer.
// Server unread counters only seed conversations the ledger does not track.
func (h *Hub) hydrateConversations(list pull.ConversationList) {
	if list.UserID != "" && list.UserID != h.self {
		h.self = list.UserID
		h.unread.SetSelf(list.UserID)
	}
	server := make(map[string]int, len(list.Conversations))
	for _, c := range list.Conversations {
		entry := store.Conversation{
			ID:           c.ID,
			Participants: store.NewUserSet(c.Participants...),
			UnreadCount:  c.UnreadCount,
		}
		if c.LastMessage != nil {
			last := chatsync.FromWire(c.ID, *c.LastMessage)
			entry.LastMessage = &last
		}
		h.store.UpsertConversation(entry)
		h.publishConversation(c.ID)
		server[c.ID] = c.UnreadCount
	}
	for _, id := range h.unread.Hydrate(server) {
		h.publishUnread(id)
	}
}

// Rooms is the connection manager's room source: it loads the conversation
// list and returns every room to join. When the list cannot be fetched after
// a first successful load, the locally known rooms are used.
func (h *Hub) Rooms(ctx context.Context) ([]string, error) {
	list, err := h.puller.GetConversations(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return nil, err
		}
		type local struct {
			ids      []string
			hydrated bool
		}
		l, qerr := query(ctx, h, func() local {
			return local{ids: h.store.ConversationIDs(), hydrated: h.hydrated}
		})
		if qerr != nil || !l.hydrated {
			return nil, err
		}
		h.logger.Warn("conversation list unavailable, rejoining known rooms", zap.Error(err))
		return l.ids, nil
	}
	return query(ctx, h, func() []string {
		h.hydrateConversations(list)
		h.hydrated = true
		return h.store.ConversationIDs()
	})
}
