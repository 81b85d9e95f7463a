// Package model caches daemon state for the TUI and decides what to reload
// when an event arrives on the watch stream.
package model

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/samber/lo"
)

// Client is the part of the daemon API the view model reads from.
type Client interface {
	GetStatus(ctx context.Context) (*api.GetStatusResponse, error)
	ListConversations(ctx context.Context) (*api.ListConversationsResponse, error)
	ListMessages(ctx context.Context, conversationID, filter string) (*api.ListMessagesResponse, error)
	ListWindows(ctx context.Context) (*api.WindowsResponse, error)
}

// Dirty names the parts of the screen an event invalidated.
type Dirty struct {
	Status        bool
	Conversations bool
	Windows       bool
	// Messages lists conversations whose open window must be redrawn.
	Messages []string
}

// Any reports whether anything needs a redraw.
func (d Dirty) Any() bool {
	return d.Status || d.Conversations || d.Windows || len(d.Messages) > 0
}

// ViewModel caches state fetched from the daemon.
type ViewModel struct {
	mu sync.RWMutex

	client        Client
	status        *api.GetStatusResponse
	conversations []api.Conversation
	unreadTotal   int
	windows       *api.WindowsResponse
	messages      map[string][]api.Message

	Flash Flash
}

// NewViewModel creates a view model reading from c.
func NewViewModel(c Client) *ViewModel {
	return &ViewModel{
		client:   c,
		windows:  &api.WindowsResponse{},
		messages: make(map[string][]api.Message),
	}
}

// LoadAll fetches everything shown on screen.
func (vm *ViewModel) LoadAll(ctx context.Context) error {
	if err := vm.LoadStatus(ctx); err != nil {
		return err
	}
	if err := vm.LoadConversations(ctx); err != nil {
		return err
	}
	return vm.LoadWindows(ctx)
}

func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	return nil
}

func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	resp, err := vm.client.ListConversations(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = resp.Conversations
	vm.unreadTotal = resp.UnreadTotal
	vm.mu.Unlock()
	return nil
}

// LoadWindows fetches the window layout and the messages of every open
// window. Messages of closed windows are dropped from the cache.
func (vm *ViewModel) LoadWindows(ctx context.Context) error {
	resp, err := vm.client.ListWindows(ctx)
	if err != nil {
		return err
	}
	vm.SetWindows(resp)
	for _, w := range resp.Windows {
		if err := vm.LoadMessages(ctx, w.ConversationID); err != nil {
			return err
		}
	}
	return nil
}

// SetWindows stores a layout returned by a window operation.
func (vm *ViewModel) SetWindows(resp *api.WindowsResponse) {
	open := lo.SliceToMap(resp.Windows, func(w api.Window) (string, bool) { return w.ConversationID, true })
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.windows = resp
	for id := range vm.messages {
		if !open[id] {
			delete(vm.messages, id)
		}
	}
}

func (vm *ViewModel) LoadMessages(ctx context.Context, conversationID string) error {
	resp, err := vm.client.ListMessages(ctx, conversationID, "")
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.messages[conversationID] = resp.Messages
	vm.mu.Unlock()
	return nil
}

// Classify maps an event to the parts of the screen it invalidates.
func (vm *ViewModel) Classify(evt *api.Event) Dirty {
	var d Dirty
	kind := evt.Kind
	switch {
	case strings.HasPrefix(kind, "session."), strings.HasPrefix(kind, "conn."):
		d.Status = true
	case strings.HasPrefix(kind, "conversation."), strings.HasPrefix(kind, "typing."):
		d.Conversations = true
	case strings.HasPrefix(kind, "unread."):
		d.Conversations, d.Status = true, true
	case strings.HasPrefix(kind, "window."):
		d.Windows, d.Conversations, d.Status = true, true, true
	case strings.HasPrefix(kind, "message."), strings.HasPrefix(kind, "receipt."):
		d.Conversations = true
		if id := conversationOf(evt.Payload); id != "" && vm.IsOpen(id) {
			d.Messages = []string{id}
		}
	}
	return d
}

// Refresh reloads what d names.
func (vm *ViewModel) Refresh(ctx context.Context, d Dirty) error {
	if d.Status {
		if err := vm.LoadStatus(ctx); err != nil {
			return err
		}
	}
	if d.Conversations {
		if err := vm.LoadConversations(ctx); err != nil {
			return err
		}
	}
	if d.Windows {
		return vm.LoadWindows(ctx)
	}
	for _, id := range d.Messages {
		if err := vm.LoadMessages(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func conversationOf(payload json.RawMessage) string {
	var p struct {
		ConversationID string `json:"conversationId"`
	}
	if len(payload) == 0 || json.Unmarshal(payload, &p) != nil {
		return ""
	}
	return p.ConversationID
}

func (vm *ViewModel) Status() *api.GetStatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

func (vm *ViewModel) Conversations() ([]api.Conversation, int) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations, vm.unreadTotal
}

func (vm *ViewModel) Windows() *api.WindowsResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.windows
}

func (vm *ViewModel) Messages(conversationID string) []api.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages[conversationID]
}

// IsOpen reports whether conversationID has a window, minimized or not.
func (vm *ViewModel) IsOpen(conversationID string) bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return lo.ContainsBy(vm.windows.Windows, func(w api.Window) bool { return w.ConversationID == conversationID })
}

// Conversation looks up one cached conversation.
func (vm *ViewModel) Conversation(id string) (api.Conversation, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return lo.Find(vm.conversations, func(c api.Conversation) bool { return c.ID == id })
}
