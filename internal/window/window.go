// Package window manages the bounded set of open conversation windows.
package window

import (
	"slices"

	"github.com/samber/lo"
)

// DefaultCapacity is the number of windows open at once.
const DefaultCapacity = 3

// Window is one open conversation view.
type Window struct {
	ConversationID string
	Minimized      bool
}

// Multiplexer keeps at most capacity windows in insertion order. When a new
// window overflows it, the window opened first is evicted, regardless of how
// recently it was used.
type Multiplexer struct {
	capacity int
	windows  []Window
	active   string
}

func New(capacity int) *Multiplexer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Multiplexer{capacity: capacity}
}

func (m *Multiplexer) index(conversationID string) int {
	return slices.IndexFunc(m.windows, func(w Window) bool {
		return w.ConversationID == conversationID
	})
}

// Open shows a conversation and focuses it. An already open window is
// restored in place. Otherwise it is appended and, if that exceeds the
// capacity, the oldest window is evicted and its id returned.
func (m *Multiplexer) Open(conversationID string) (evicted string) {
	if i := m.index(conversationID); i >= 0 {
		m.windows[i].Minimized = false
		m.active = conversationID
		return ""
	}
	m.windows = append(m.windows, Window{ConversationID: conversationID})
	if len(m.windows) > m.capacity {
		evicted = m.windows[0].ConversationID
		m.windows = slices.Delete(m.windows, 0, 1)
		if m.active == evicted {
			m.active = ""
		}
	}
	m.active = conversationID
	return evicted
}

// Close removes a window from any position.
func (m *Multiplexer) Close(conversationID string) bool {
	i := m.index(conversationID)
	if i < 0 {
		return false
	}
	m.windows = slices.Delete(m.windows, i, i+1)
	if m.active == conversationID {
		m.active = ""
	}
	return true
}

// Minimize collapses a window without evicting it.
func (m *Multiplexer) Minimize(conversationID string) bool {
	i := m.index(conversationID)
	if i < 0 {
		return false
	}
	m.windows[i].Minimized = true
	if m.active == conversationID {
		m.active = ""
	}
	return true
}

// Focus makes an open window the active one, restoring it if minimized.
func (m *Multiplexer) Focus(conversationID string) bool {
	i := m.index(conversationID)
	if i < 0 {
		return false
	}
	m.windows[i].Minimized = false
	m.active = conversationID
	return true
}

// Blur clears the active window, e.g. when the whole client loses focus.
func (m *Multiplexer) Blur() {
	m.active = ""
}

// Active returns the focused conversation, or "".
func (m *Multiplexer) Active() string { return m.active }

func (m *Multiplexer) IsOpen(conversationID string) bool {
	return m.index(conversationID) >= 0
}

// CanAcknowledge reports whether the conversation may be marked as read: it
// must be the focused, open, non-minimized window.
func (m *Multiplexer) CanAcknowledge(conversationID string) bool {
	if conversationID == "" || m.active != conversationID {
		return false
	}
	i := m.index(conversationID)
	return i >= 0 && !m.windows[i].Minimized
}

// List returns the windows in insertion order.
func (m *Multiplexer) List() []Window {
	return slices.Clone(m.windows)
}

// IDs returns the open conversation ids in insertion order.
func (m *Multiplexer) IDs() []string {
	return lo.Map(m.windows, func(w Window, _ int) string { return w.ConversationID })
}

func (m *Multiplexer) Len() int      { return len(m.windows) }
func (m *Multiplexer) Capacity() int { return m.capacity }
