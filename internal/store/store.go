// Package store holds the in-memory conversation registry and the per
// conversation message logs.
//
// A Store is not safe for concurrent use; it is owned by the hub event loop.
package store

import (
	"slices"
	"strings"

	"github.com/samber/lo"
)

type conversationLog struct {
	order []string
	byID  map[string]*Message
}

// Store is the append-only, id-keyed message store.
type Store struct {
	logs  map[string]*conversationLog
	convs map[string]*Conversation
}

// New creates an empty store.
func New() *Store {
	return &Store{
		logs:  make(map[string]*conversationLog),
		convs: make(map[string]*Conversation),
	}
}

func (s *Store) log(conversationID string) *conversationLog {
	l, ok := s.logs[conversationID]
	if !ok {
		l = &conversationLog{byID: make(map[string]*Message)}
		s.logs[conversationID] = l
	}
	return l
}

// Insert adds msg to its conversation. It is a no-op returning false when a
// row with the same id already exists. The row lands after the last row whose
// CreatedAt is not after msg.CreatedAt, which is an append for live traffic.
func (s *Store) Insert(msg Message) bool {
	l := s.log(msg.ConversationID)
	if _, ok := l.byID[msg.ID]; ok {
		return false
	}
	m := msg.Clone()
	if m.ReadBy == nil {
		m.ReadBy = NewUserSet()
	}
	pos := len(l.order)
	for pos > 0 && l.byID[l.order[pos-1]].CreatedAt.After(m.CreatedAt) {
		pos--
	}
	l.order = append(l.order, "")
	copy(l.order[pos+1:], l.order[pos:])
	l.order[pos] = m.ID
	l.byID[m.ID] = &m

	s.ensureConversation(m.ConversationID).Participants.Add(m.Sender)
	s.touch(m)
	return true
}

// Replace swaps the row oldID for msg without moving it. When msg.ID already
// exists as a different row, that row is folded into the replaced one and
// removed so the conversation keeps a single row per id.
func (s *Store) Replace(conversationID, oldID string, msg Message) bool {
	l, ok := s.logs[conversationID]
	if !ok {
		return false
	}
	old, ok := l.byID[oldID]
	if !ok {
		return false
	}

	m := msg.Clone()
	m.ConversationID = conversationID
	if m.ReadBy == nil {
		m.ReadBy = NewUserSet()
	}
	m.ReadBy.Add(old.ReadBy.Slice()...)

	if dup, exists := l.byID[m.ID]; exists && m.ID != oldID {
		mergeInto(&m, *dup)
		l.order = lo.Without(l.order, m.ID)
		delete(l.byID, m.ID)
	}

	delete(l.byID, oldID)
	idx := lo.IndexOf(l.order, oldID)
	l.order[idx] = m.ID
	l.byID[m.ID] = &m

	if c, ok := s.convs[conversationID]; ok && c.LastMessage != nil && (c.LastMessage.ID == oldID || c.LastMessage.ID == m.ID) {
		c.LastMessage = nil
		s.recomputeLast(conversationID)
	} else {
		s.touch(m)
	}
	return true
}

// Merge folds a server copy of an existing row into it: readBy union, sticky
// deleted and edited flags, edited content wins. It reports whether the row
// changed.
func (s *Store) Merge(msg Message) (Message, bool) {
	l, ok := s.logs[msg.ConversationID]
	if !ok {
		return Message{}, false
	}
	cur, ok := l.byID[msg.ID]
	if !ok {
		return Message{}, false
	}
	before := cur.Clone()
	mergeInto(cur, msg)
	changed := !equalRows(before, *cur)
	if changed {
		s.syncLast(*cur)
	}
	return cur.Clone(), changed
}

func mergeInto(dst *Message, src Message) {
	dst.ReadBy.Add(src.ReadBy.Slice()...)
	if src.Edited && !dst.Deleted {
		if !dst.Edited || src.EditedAt.After(dst.EditedAt) {
			dst.Content = src.Content
			dst.EditedAt = src.EditedAt
		}
		dst.Edited = true
	}
	if src.Deleted {
		dst.Deleted = true
		dst.Content = ""
	}
	if dst.ClientID == "" {
		dst.ClientID = src.ClientID
	}
}

func equalRows(a, b Message) bool {
	return a.Content == b.Content &&
		a.Edited == b.Edited &&
		a.Deleted == b.Deleted &&
		a.Delivery == b.Delivery &&
		a.ReadBy.Len() == b.ReadBy.Len()
}

// Update applies fn to the row in place and returns the updated copy.
func (s *Store) Update(conversationID, id string, fn func(*Message)) (Message, bool) {
	l, ok := s.logs[conversationID]
	if !ok {
		return Message{}, false
	}
	m, ok := l.byID[id]
	if !ok {
		return Message{}, false
	}
	fn(m)
	s.syncLast(*m)
	return m.Clone(), true
}

// Edit replaces the content of a row in place and marks it edited.
func (s *Store) Edit(conversationID, id, content string) (Message, bool) {
	return s.Update(conversationID, id, func(m *Message) {
		if m.Deleted {
			return
		}
		m.Content = content
		m.Edited = true
	})
}

// MarkDeleted tombstones a row: the id and position stay, the content goes.
func (s *Store) MarkDeleted(conversationID, id string) (Message, bool) {
	return s.Update(conversationID, id, func(m *Message) {
		m.Deleted = true
		m.Content = ""
	})
}

// Get returns a copy of one row.
func (s *Store) Get(conversationID, id string) (Message, bool) {
	l, ok := s.logs[conversationID]
	if !ok {
		return Message{}, false
	}
	m, ok := l.byID[id]
	if !ok {
		return Message{}, false
	}
	return m.Clone(), true
}

// Has reports whether a row with the id exists in the conversation.
func (s *Store) Has(conversationID, id string) bool {
	l, ok := s.logs[conversationID]
	if !ok {
		return false
	}
	_, ok = l.byID[id]
	return ok
}

// Len returns the number of rows in the conversation.
func (s *Store) Len(conversationID string) int {
	l, ok := s.logs[conversationID]
	if !ok {
		return 0
	}
	return len(l.order)
}

// List returns an ordered copy of the conversation. A non-empty filter keeps
// rows whose content contains it, case-insensitively.
func (s *Store) List(conversationID, filter string) []Message {
	l, ok := s.logs[conversationID]
	if !ok {
		return nil
	}
	needle := strings.ToLower(filter)
	out := make([]Message, 0, len(l.order))
	for _, id := range l.order {
		m := l.byID[id]
		if needle != "" && !strings.Contains(strings.ToLower(m.Content), needle) {
			continue
		}
		out = append(out, m.Clone())
	}
	return out
}

// IDs returns the ordered message ids of a conversation.
func (s *Store) IDs(conversationID string) []string {
	l, ok := s.logs[conversationID]
	if !ok {
		return nil
	}
	return slices.Clone(l.order)
}
