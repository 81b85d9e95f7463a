// Package receipt derives delivery and read status from readBy sets.
package receipt

import (
	"time"

	"github.com/matheus3301/chatsync/internal/store"
)

// Resolve computes the delivery status of a message from its readBy set.
// Pending and failed messages are left as they are.
func Resolve(m store.Message) store.Status {
	if !m.Confirmed() {
		return m.Delivery
	}
	for id := range m.ReadBy {
		if id != m.Sender {
			return store.StatusSeen
		}
	}
	if m.ReadBy.Has(m.Sender) {
		return store.StatusDelivered
	}
	return store.StatusSent
}

// Tracker applies read receipts to the message store. It keeps, per
// conversation and reader, the newest instant that reader is known to have
// read up to, so rows merged after the receipt (history loaded late, a
// confirmation arriving after the seen) pick it up too.
type Tracker struct {
	store *store.Store
	seen  map[string]map[string]time.Time
}

// NewTracker creates a tracker over s.
func NewTracker(s *store.Store) *Tracker {
	return &Tracker{store: s, seen: make(map[string]map[string]time.Time)}
}

// Refresh applies the recorded receipts to one row and recomputes its
// delivery status.
func (t *Tracker) Refresh(conversationID, id string) (store.Message, bool) {
	var changed bool
	m, ok := t.store.Update(conversationID, id, func(m *store.Message) {
		grew := t.merge(conversationID, m)
		next := Resolve(*m)
		changed = grew || next != m.Delivery
		m.Delivery = next
	})
	return m, ok && changed
}

// ApplySeen records that userID has read the conversation up to at: userID
// joins the readBy set of every confirmed message. at is raised to the newest
// message the conversation is known to hold. It returns the rows whose
// readBy or status changed.
func (t *Tracker) ApplySeen(conversationID, userID string, at time.Time) []store.Message {
	if latest := t.latest(conversationID); latest.After(at) {
		at = latest
	}
	readers := t.seen[conversationID]
	if readers == nil {
		readers = make(map[string]time.Time)
		t.seen[conversationID] = readers
	}
	if at.After(readers[userID]) {
		readers[userID] = at
	}

	var out []store.Message
	for _, id := range t.store.IDs(conversationID) {
		var changed bool
		m, _ := t.store.Update(conversationID, id, func(m *store.Message) {
			if !m.Confirmed() {
				return
			}
			grew := addReader(m, userID)
			next := Resolve(*m)
			changed = grew || next != m.Delivery
			m.Delivery = next
		})
		if changed {
			out = append(out, m)
		}
	}
	return out
}

// Forget drops the receipts recorded for a conversation.
func (t *Tracker) Forget(conversationID string) {
	delete(t.seen, conversationID)
}

// merge adds every reader whose receipt covers m. Pending and failed rows
// are skipped; they join once confirmed.
func (t *Tracker) merge(conversationID string, m *store.Message) bool {
	if !m.Confirmed() {
		return false
	}
	var grew bool
	for userID, at := range t.seen[conversationID] {
		if !m.CreatedAt.After(at) && addReader(m, userID) {
			grew = true
		}
	}
	return grew
}

func (t *Tracker) latest(conversationID string) time.Time {
	var latest time.Time
	if c, ok := t.store.Conversation(conversationID); ok && c.LastMessage != nil && c.LastMessage.Confirmed() {
		latest = c.LastMessage.CreatedAt
	}
	for _, m := range t.store.List(conversationID, "") {
		if m.Confirmed() && m.CreatedAt.After(latest) {
			latest = m.CreatedAt
		}
	}
	return latest
}

func addReader(m *store.Message, userID string) bool {
	if m.ReadBy == nil {
		m.ReadBy = store.NewUserSet()
	}
	return m.ReadBy.Add(userID)
}
