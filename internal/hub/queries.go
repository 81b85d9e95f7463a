package hub

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/presence"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/window"
)

// ConversationView is a registry entry joined with the local counters.
type ConversationView struct {
	store.Conversation
	Unread int
	Open   bool
	Typers []string
}

// WindowState is the current window set.
type WindowState struct {
	Windows  []window.Window
	Active   string
	Capacity int
}

// Self returns the local user id, or "" before the conversation list loaded.
func (h *Hub) Self(ctx context.Context) (string, error) {
	return query(ctx, h, func() string { return h.self })
}

// Conversations returns every conversation, most recent activity first.
func (h *Hub) Conversations(ctx context.Context) ([]ConversationView, error) {
	return query(ctx, h, func() []ConversationView {
		now := h.now()
		convs := h.store.Conversations()
		out := make([]ConversationView, len(convs))
		for i, c := range convs {
			out[i] = ConversationView{
				Conversation: c,
				Unread:       h.unread.Count(c.ID),
				Open:         h.windows.IsOpen(c.ID),
				Typers:       h.typing.Typers(c.ID, now),
			}
		}
		return out
	})
}

// Messages returns the log of a conversation in display order, optionally
// filtered by a case-insensitive substring.
func (h *Hub) Messages(ctx context.Context, conversationID, filter string) ([]store.Message, error) {
	var out []store.Message
	err := h.do(ctx, func() error {
		if !h.store.HasConversation(conversationID) {
			return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
		}
		out = h.store.List(conversationID, filter)
		return nil
	})
	return out, err
}

func (h *Hub) Windows(ctx context.Context) (WindowState, error) {
	return query(ctx, h, func() WindowState {
		return WindowState{
			Windows:  h.windows.List(),
			Active:   h.windows.Active(),
			Capacity: h.windows.Capacity(),
		}
	})
}

func (h *Hub) Presence(ctx context.Context, userID string) (presence.Entry, error) {
	return query(ctx, h, func() presence.Entry { return h.presence.Get(userID) })
}

func (h *Hub) Typers(ctx context.Context, conversationID string) ([]string, error) {
	return query(ctx, h, func() []string { return h.typing.Typers(conversationID, h.now()) })
}

// Unread returns the per-conversation counters and their total.
func (h *Hub) Unread(ctx context.Context) (map[string]int, int, error) {
	type snapshot struct {
		counts map[string]int
		total  int
	}
	s, err := query(ctx, h, func() snapshot {
		return snapshot{counts: h.unread.Snapshot(), total: h.unread.Total()}
	})
	return s.counts, s.total, err
}

// Outbox returns the messages waiting for confirmation.
func (h *Hub) Outbox(ctx context.Context) ([]outbox.Entry, error) {
	return query(ctx, h, func() []outbox.Entry { return h.outbox.Entries() })
}
