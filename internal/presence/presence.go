// Package presence tracks online status and typing indicators.
//
// Nothing here is persisted: presence is rebuilt from the push channel after
// every reconnect and typing entries expire on their own.
package presence

import "time"

// Entry is the known presence of one user.
type Entry struct {
	UserID     string
	Online     bool
	LastSeenAt time.Time
	Known      bool
}

// Tracker holds the last presence seen for each user.
type Tracker struct {
	users map[string]Entry
}

func NewTracker() *Tracker {
	return &Tracker{users: make(map[string]Entry)}
}

// Apply records a presence event and reports whether the visible entry
// changed. An event whose lastSeenAt is older than the stored one is stale and
// ignored.
func (t *Tracker) Apply(userID string, online bool, lastSeenAt time.Time) bool {
	cur, ok := t.users[userID]
	if ok && !lastSeenAt.IsZero() && !cur.LastSeenAt.IsZero() && lastSeenAt.Before(cur.LastSeenAt) {
		return false
	}
	next := Entry{UserID: userID, Online: online, LastSeenAt: lastSeenAt, Known: true}
	if lastSeenAt.IsZero() {
		next.LastSeenAt = cur.LastSeenAt
	}
	t.users[userID] = next
	return !ok || cur != next
}

// Get returns the entry for userID; Known is false when nothing was received
// since the last reset.
func (t *Tracker) Get(userID string) Entry {
	e, ok := t.users[userID]
	if !ok {
		return Entry{UserID: userID}
	}
	return e
}

// Online returns the ids of every user currently known to be online.
func (t *Tracker) Online() []string {
	var out []string
	for id, e := range t.users {
		if e.Online {
			out = append(out, id)
		}
	}
	return out
}

// Reset returns every user to unknown.
func (t *Tracker) Reset() {
	clear(t.users)
}
