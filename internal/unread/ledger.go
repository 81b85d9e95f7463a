// Package unread keeps per-conversation unread counters.
package unread

import (
	"maps"

	"github.com/samber/lo"
)

// Ledger tracks unread counts. It is owned by the hub event loop.
type Ledger struct {
	self   string
	active string
	counts map[string]int
}

// New creates a ledger for the local user.
func New(self string) *Ledger {
	return &Ledger{self: self, counts: make(map[string]int)}
}

// SetSelf sets the local user id once the pull layer reports it.
func (l *Ledger) SetSelf(id string) { l.self = id }

// SetActive records the conversation currently in focus ("" for none).
func (l *Ledger) SetActive(conversationID string) { l.active = conversationID }

func (l *Ledger) Active() string { return l.active }

// Increment counts one unread message. Messages from the local user and
// messages in the active conversation are not counted.
func (l *Ledger) Increment(conversationID, sender string) bool {
	if sender == l.self || conversationID == l.active {
		return false
	}
	l.counts[conversationID]++
	return true
}

// Focus makes the conversation active and clears its counter when it has at
// least one loaded message. It reports whether the counter was cleared.
func (l *Ledger) Focus(conversationID string, hasMessages bool) bool {
	l.active = conversationID
	if !hasMessages {
		return false
	}
	return l.clear(conversationID)
}

// ClearFromReceipt clears the counter when the server reports that the local
// user read the conversation, possibly from another device.
func (l *Ledger) ClearFromReceipt(conversationID string) bool {
	return l.clear(conversationID)
}

func (l *Ledger) clear(conversationID string) bool {
	prev, ok := l.counts[conversationID]
	l.counts[conversationID] = 0
	return !ok || prev != 0
}

// Hydrate seeds counters from server-reported values. Counters already
// tracked locally are left alone. It returns the ids that were seeded.
func (l *Ledger) Hydrate(server map[string]int) []string {
	var seeded []string
	for id, n := range server {
		if _, ok := l.counts[id]; ok {
			continue
		}
		l.counts[id] = max(n, 0)
		seeded = append(seeded, id)
	}
	return seeded
}

// Count returns the unread count of one conversation.
func (l *Ledger) Count(conversationID string) int {
	return l.counts[conversationID]
}

// Total returns the sum of every counter.
func (l *Ledger) Total() int {
	return lo.Sum(lo.Values(l.counts))
}

// Remove forgets a conversation.
func (l *Ledger) Remove(conversationID string) {
	delete(l.counts, conversationID)
	if l.active == conversationID {
		l.active = ""
	}
}

// Snapshot returns a copy of all counters.
func (l *Ledger) Snapshot() map[string]int {
	return maps.Clone(l.counts)
}
