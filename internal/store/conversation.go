package store

import (
	"slices"
	"strings"

	"github.com/samber/lo"
)

// UpsertConversation merges c into the registry. Participants are unioned and
// the last message is whichever of the two is newer, so upserts commute.
func (s *Store) UpsertConversation(c Conversation) Conversation {
	cur := s.ensureConversation(c.ID)
	cur.Participants.Add(c.Participants.Slice()...)
	if c.LastMessage != nil {
		last := c.LastMessage.Clone()
		last.ConversationID = c.ID
		s.touch(last)
	}
	cur.UnreadCount = c.UnreadCount
	return cur.Clone()
}

func (s *Store) ensureConversation(id string) *Conversation {
	c, ok := s.convs[id]
	if !ok {
		c = &Conversation{ID: id, Participants: NewUserSet()}
		s.convs[id] = c
	}
	return c
}

// touch raises the conversation's last message to m if m is at least as new.
func (s *Store) touch(m Message) {
	c := s.ensureConversation(m.ConversationID)
	if c.LastMessage == nil || !m.CreatedAt.Before(c.LastMessage.CreatedAt) {
		cp := m.Clone()
		c.LastMessage = &cp
	}
}

// syncLast refreshes the denormalized copy when m is the current last message.
func (s *Store) syncLast(m Message) {
	c, ok := s.convs[m.ConversationID]
	if !ok || c.LastMessage == nil || c.LastMessage.ID != m.ID {
		return
	}
	cp := m.Clone()
	c.LastMessage = &cp
}

func (s *Store) recomputeLast(conversationID string) {
	l, ok := s.logs[conversationID]
	if !ok {
		return
	}
	for _, id := range l.order {
		s.touch(*l.byID[id])
	}
}

// HasConversation reports whether the conversation is known locally.
func (s *Store) HasConversation(id string) bool {
	_, ok := s.convs[id]
	return ok
}

// Conversation returns a copy of one registry entry.
func (s *Store) Conversation(id string) (Conversation, bool) {
	c, ok := s.convs[id]
	if !ok {
		return Conversation{}, false
	}
	return c.Clone(), true
}

// Conversations returns every conversation, most recent activity first.
func (s *Store) Conversations() []Conversation {
	out := lo.MapToSlice(s.convs, func(_ string, c *Conversation) Conversation {
		return c.Clone()
	})
	slices.SortFunc(out, func(a, b Conversation) int {
		if c := b.LastActivity().Compare(a.LastActivity()); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// ConversationIDs returns every known conversation id, sorted.
func (s *Store) ConversationIDs() []string {
	ids := lo.Keys(s.convs)
	slices.Sort(ids)
	return ids
}

// RemoveConversation drops the conversation and its log. It reports whether
// anything was removed.
func (s *Store) RemoveConversation(id string) bool {
	_, known := s.convs[id]
	_, logged := s.logs[id]
	delete(s.convs, id)
	delete(s.logs, id)
	return known || logged
}
