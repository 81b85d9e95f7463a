package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/pull"
	"github.com/matheus3301/chatsync/internal/store"
	chatsync "github.com/matheus3301/chatsync/internal/sync"
	"go.uber.org/zap"
)

// Send inserts an optimistic pending message and queues it for dispatch.
func (h *Hub) Send(ctx context.Context, conversationID, content string) (store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return store.Message{}, ErrEmptyMessage
	}
	var out store.Message
	err := h.do(ctx, func() error {
		if !h.store.HasConversation(conversationID) {
			return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
		}
		if h.self == "" {
			return ErrNotReady
		}
		now := h.now()
		out = h.recon.Send(conversationID, h.self, content, now)
		h.outbox.Queue(out.ID, conversationID, content, now)
		if h.local.Stop(conversationID) {
			_ = h.send(protocol.StopTyping(conversationID))
		}
		h.publish(bus.KindMessageUpserted, store.MessageChange{ConversationID: conversationID, Message: out})
		h.flush()
		return nil
	})
	return out, err
}

// Resend retries a failed message. Only failed placeholders may be resent.
func (h *Hub) Resend(ctx context.Context, conversationID, clientID string) (store.Message, error) {
	var out store.Message
	err := h.do(ctx, func() error {
		m, err := h.recon.Resend(conversationID, clientID, h.now())
		if err != nil {
			return err
		}
		out = m
		if !h.outbox.Requeue(clientID) {
			h.outbox.Queue(clientID, conversationID, m.Content, h.now())
		}
		h.publish(bus.KindMessageUpserted, store.MessageChange{ConversationID: conversationID, Message: m})
		h.flush()
		return nil
	})
	return out, err
}

// ownMessage checks that a confirmed message of the local user exists.
func (h *Hub) ownMessage(ctx context.Context, conversationID, msgID string) error {
	return h.do(ctx, func() error {
		m, ok := h.store.Get(conversationID, msgID)
		switch {
		case !ok:
			return fmt.Errorf("%w: %s", ErrUnknownMessage, msgID)
		case !m.Confirmed():
			return fmt.Errorf("%w: %s", ErrNotConfirmed, msgID)
		case m.Sender != h.self:
			return fmt.Errorf("%w: %s", ErrNotOwner, msgID)
		}
		return nil
	})
}

// Edit changes the content of one of the local user's messages through the
// pull layer and applies it in place.
func (h *Hub) Edit(ctx context.Context, conversationID, msgID, content string) (store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return store.Message{}, ErrEmptyMessage
	}
	if err := h.ownMessage(ctx, conversationID, msgID); err != nil {
		return store.Message{}, err
	}
	if _, err := h.puller.EditMessage(ctx, msgID, content); err != nil {
		return store.Message{}, fmt.Errorf("edit message: %w", err)
	}
	var out store.Message
	err := h.do(ctx, func() error {
		m, ok := h.store.Edit(conversationID, msgID, content)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMessage, msgID)
		}
		out = m
		h.publish(bus.KindMessageEdited, store.MessageChange{ConversationID: conversationID, Message: m})
		return nil
	})
	return out, err
}

// Delete tombstones one of the local user's messages.
func (h *Hub) Delete(ctx context.Context, conversationID, msgID string) error {
	if err := h.ownMessage(ctx, conversationID, msgID); err != nil {
		return err
	}
	if err := h.puller.DeleteMessage(ctx, msgID); err != nil && !errors.Is(err, pull.ErrNotFound) {
		return fmt.Errorf("delete message: %w", err)
	}
	return h.do(ctx, func() error {
		m, ok := h.store.MarkDeleted(conversationID, msgID)
		if !ok {
			return nil
		}
		h.publish(bus.KindMessageDeleted, store.MessageChange{ConversationID: conversationID, Message: m})
		return nil
	})
}

// DeleteConversation deletes a conversation on the backend and removes every
// local trace of it.
func (h *Hub) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := h.puller.DeleteConversation(ctx, conversationID); err != nil && !errors.Is(err, pull.ErrNotFound) {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return h.do(ctx, func() error {
		h.store.RemoveConversation(conversationID)
		h.recon.Forget(conversationID)
		h.receipts.Forget(conversationID)
		h.outbox.Forget(conversationID)
		h.typing.Forget(conversationID)
		h.local.Stop(conversationID)
		h.unread.Remove(conversationID)
		delete(h.loaded, conversationID)
		if h.windows.Close(conversationID) {
			h.syncActive()
			h.publishWindows("")
		}
		h.publish(bus.KindConversationRemoved, conversationID)
		h.publishUnread(conversationID)
		return nil
	})
}

// StartConversation opens a conversation with another user, joins its room
// right away and opens a window on it.
func (h *Hub) StartConversation(ctx context.Context, targetUserID string) (store.Conversation, error) {
	started, err := h.puller.StartConversation(ctx, targetUserID)
	if err != nil {
		return store.Conversation{}, fmt.Errorf("start conversation: %w", err)
	}
	id := started.Conversation.ID
	var out store.Conversation
	err = h.do(ctx, func() error {
		h.hydrateConversations(pull.ConversationList{Conversations: []pull.Conversation{started.Conversation}})
		h.hydrateMessages(id, started.Messages)
		_ = h.send(protocol.Join([]string{id}))
		h.openWindow(id)
		out, _ = h.store.Conversation(id)
		return nil
	})
	return out, err
}

// LoadMessages fetches the history of a conversation and merges it.
func (h *Hub) LoadMessages(ctx context.Context, conversationID string) error {
	msgs, err := h.puller.GetMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("get messages: %w", err)
	}
	return h.do(ctx, func() error {
		if !h.store.HasConversation(conversationID) {
			return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
		}
		h.hydrateMessages(conversationID, msgs)
		h.acknowledge(conversationID)
		return nil
	})
}

func (h *Hub) hydrateMessages(conversationID string, msgs []protocol.Message) {
	rows := make([]store.Message, len(msgs))
	for i, m := range msgs {
		rows[i] = chatsync.FromWire(conversationID, m)
	}
	for _, res := range h.recon.Hydrate(conversationID, rows) {
		h.apply(res, false)
	}
	h.loaded[conversationID] = true
}

// OpenWindow opens (or restores) a window and focuses it. History is loaded
// the first time a conversation is shown. It returns the evicted window, if
// any.
func (h *Hub) OpenWindow(ctx context.Context, conversationID string) (string, error) {
	var evicted string
	var load bool
	err := h.do(ctx, func() error {
		if !h.store.HasConversation(conversationID) {
			return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
		}
		evicted = h.openWindow(conversationID)
		load = !h.loaded[conversationID]
		return nil
	})
	if err != nil || !load {
		return evicted, err
	}
	if err := h.LoadMessages(ctx, conversationID); err != nil {
		h.logger.Warn("load history", zap.String("conversation_id", conversationID), zap.Error(err))
		return evicted, err
	}
	return evicted, nil
}

func (h *Hub) openWindow(conversationID string) string {
	evicted := h.windows.Open(conversationID)
	h.syncActive()
	h.publishWindows(evicted)
	// Unloaded history is acknowledged once LoadMessages merged it.
	h.acknowledge(conversationID)
	return evicted
}

// CloseWindow closes a window. Nothing already sent is rolled back.
func (h *Hub) CloseWindow(ctx context.Context, conversationID string) error {
	return h.windowOp(ctx, conversationID, h.windows.Close)
}

// MinimizeWindow collapses a window; a minimized window never acknowledges.
func (h *Hub) MinimizeWindow(ctx context.Context, conversationID string) error {
	return h.windowOp(ctx, conversationID, h.windows.Minimize)
}

// FocusWindow focuses an open window and acknowledges it.
func (h *Hub) FocusWindow(ctx context.Context, conversationID string) error {
	return h.windowOp(ctx, conversationID, func(id string) bool {
		if !h.windows.Focus(id) {
			return false
		}
		h.acknowledge(id)
		return true
	})
}

// Blur clears the focused window, e.g. when the client is hidden.
func (h *Hub) Blur(ctx context.Context) error {
	return h.do(ctx, func() error {
		h.windows.Blur()
		h.syncActive()
		h.publishWindows("")
		return nil
	})
}

func (h *Hub) windowOp(ctx context.Context, conversationID string, op func(string) bool) error {
	return h.do(ctx, func() error {
		if !op(conversationID) {
			return fmt.Errorf("%w: %s", ErrWindowNotOpen, conversationID)
		}
		h.syncActive()
		h.publishWindows("")
		return nil
	})
}

func (h *Hub) syncActive() {
	h.unread.SetActive(h.windows.Active())
}

// Typing records a local keystroke. The first keystroke of a burst sends
// start_typing; stop_typing follows once the burst goes idle.
func (h *Hub) Typing(ctx context.Context, conversationID string) error {
	return h.do(ctx, func() error {
		if !h.store.HasConversation(conversationID) {
			return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
		}
		if h.local.Keystroke(conversationID, h.now()) {
			return h.send(protocol.StartTyping(conversationID))
		}
		return nil
	})
}

// SetVisibility toggles whether the local user appears online.
func (h *Hub) SetVisibility(ctx context.Context, visible bool) error {
	return h.do(ctx, func() error {
		return h.send(protocol.SetVisibility(visible))
	})
}
