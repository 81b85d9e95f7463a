package store

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// Status is the user-visible state of a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
	StatusFailed    Status = "failed"
	StatusEdited    Status = "edited"
	StatusDeleted   Status = "deleted"
)

// UserSet is a grow-only set of user ids.
type UserSet map[string]struct{}

// NewUserSet builds a set from ids, ignoring empty strings.
func NewUserSet(ids ...string) UserSet {
	s := make(UserSet, len(ids))
	s.Add(ids...)
	return s
}

// Add inserts ids and reports whether the set grew.
func (s UserSet) Add(ids ...string) bool {
	grew := false
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s[id]; !ok {
			s[id] = struct{}{}
			grew = true
		}
	}
	return grew
}

func (s UserSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s UserSet) Len() int { return len(s) }

// Slice returns the members sorted.
func (s UserSet) Slice() []string {
	out := lo.Keys(s)
	slices.Sort(out)
	return out
}

func (s UserSet) Clone() UserSet {
	out := make(UserSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Message is one row of a conversation log.
//
// Delivery carries the receipt-driven part of the status (pending, sent,
// delivered, seen, failed); Edited and Deleted are lifecycle flags layered on
// top. Status folds them into a single value.
type Message struct {
	ID             string
	ClientID       string
	ConversationID string
	Sender         string
	Content        string
	CreatedAt      time.Time
	EditedAt       time.Time
	Delivery       Status
	ReadBy         UserSet
	Edited         bool
	Deleted        bool
}

// Status resolves the display status: deleted > failed > pending > edited > delivery.
func (m Message) Status() Status {
	switch {
	case m.Deleted:
		return StatusDeleted
	case m.Delivery == StatusFailed:
		return StatusFailed
	case m.Delivery == StatusPending:
		return StatusPending
	case m.Edited:
		return StatusEdited
	case m.Delivery == "":
		return StatusSent
	}
	return m.Delivery
}

// Confirmed reports whether the server has acknowledged the message.
func (m Message) Confirmed() bool {
	return m.Delivery != StatusPending && m.Delivery != StatusFailed
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	m.ReadBy = m.ReadBy.Clone()
	return m
}

// Conversation is an entry of the conversation registry.
type Conversation struct {
	ID           string
	Participants UserSet
	LastMessage  *Message
	// UnreadCount is the server-reported counter from the pull layer. The
	// authoritative local counter lives in the unread ledger.
	UnreadCount int
}

// LastActivity returns the createdAt of the last message, or the zero time.
func (c Conversation) LastActivity() time.Time {
	if c.LastMessage == nil {
		return time.Time{}
	}
	return c.LastMessage.CreatedAt
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	c.Participants = c.Participants.Clone()
	if c.LastMessage != nil {
		m := c.LastMessage.Clone()
		c.LastMessage = &m
	}
	return c
}

// MessageChange is the bus payload for every message.* event.
type MessageChange struct {
	ConversationID string
	Message        Message
	// PreviousID is the temporary id a confirmed message replaced, if any.
	PreviousID string
}
