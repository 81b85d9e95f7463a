package presence

import (
	"slices"
	"time"
)

// DefaultTypingTimeout is how long a typing indicator lives without a refresh.
const DefaultTypingTimeout = 1500 * time.Millisecond

type typingEntry struct {
	userID  string
	expires time.Time
}

// Typing tracks remote typing indicators per conversation. Each entry expires
// on its own so a lost stop_typing cannot leave it up forever.
type Typing struct {
	timeout time.Duration
	entries map[string]map[string]time.Time
}

func NewTyping(timeout time.Duration) *Typing {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &Typing{timeout: timeout, entries: make(map[string]map[string]time.Time)}
}

// Start records that userID is typing in the conversation until now+timeout.
// It reports whether the user was not already shown as typing.
func (t *Typing) Start(conversationID, userID string, now time.Time) bool {
	users, ok := t.entries[conversationID]
	if !ok {
		users = make(map[string]time.Time)
		t.entries[conversationID] = users
	}
	exp, had := users[userID]
	users[userID] = now.Add(t.timeout)
	return !had || !now.Before(exp)
}

// Stop removes the indicator and reports whether one was shown.
func (t *Typing) Stop(conversationID, userID string) bool {
	users, ok := t.entries[conversationID]
	if !ok {
		return false
	}
	_, had := users[userID]
	delete(users, userID)
	if len(users) == 0 {
		delete(t.entries, conversationID)
	}
	return had
}

// Sweep drops expired indicators and returns the conversations that changed.
func (t *Typing) Sweep(now time.Time) []string {
	var changed []string
	for conv, users := range t.entries {
		for user, exp := range users {
			if !now.Before(exp) {
				delete(users, user)
				if !slices.Contains(changed, conv) {
					changed = append(changed, conv)
				}
			}
		}
		if len(users) == 0 {
			delete(t.entries, conv)
		}
	}
	slices.Sort(changed)
	return changed
}

// Typers returns the users typing in a conversation at now, sorted.
func (t *Typing) Typers(conversationID string, now time.Time) []string {
	var out []string
	for user, exp := range t.entries[conversationID] {
		if now.Before(exp) {
			out = append(out, user)
		}
	}
	slices.Sort(out)
	return out
}

// Forget drops every indicator of a conversation.
func (t *Typing) Forget(conversationID string) {
	delete(t.entries, conversationID)
}

// Local debounces the local user's keystrokes into start_typing and
// stop_typing commands.
type Local struct {
	idle time.Duration
	last map[string]time.Time
}

func NewLocal(idle time.Duration) *Local {
	if idle <= 0 {
		idle = DefaultTypingTimeout
	}
	return &Local{idle: idle, last: make(map[string]time.Time)}
}

// Keystroke records typing activity and reports whether a start_typing must
// be sent, which is only the case for the first keystroke of a burst.
func (l *Local) Keystroke(conversationID string, now time.Time) bool {
	_, typing := l.last[conversationID]
	l.last[conversationID] = now
	return !typing
}

// Stop ends a burst early (the message was sent). It reports whether a
// stop_typing must be sent.
func (l *Local) Stop(conversationID string) bool {
	_, typing := l.last[conversationID]
	delete(l.last, conversationID)
	return typing
}

// Sweep returns the conversations idle for at least the idle period, each of
// which needs a stop_typing.
func (l *Local) Sweep(now time.Time) []string {
	var out []string
	for conv, last := range l.last {
		if now.Sub(last) >= l.idle {
			delete(l.last, conv)
			out = append(out, conv)
		}
	}
	slices.Sort(out)
	return out
}
