// Package sync reconciles optimistic local sends with confirmed messages
// arriving from the push channel and the pull layer.
package sync

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// DefaultPendingTimeout is how long a send may stay pending before it fails.
const DefaultPendingTimeout = 10 * time.Second

// matchSkew bounds how far before a placeholder a history message may be
// stamped and still match it. It keeps old history with identical content
// from claiming a fresh send. Live confirmations are not bounded: the server
// clock may be skewed arbitrarily against ours.
const matchSkew = 2 * time.Minute

var (
	ErrUnknownPlaceholder = errors.New("unknown placeholder")
	ErrNotFailed          = errors.New("message has not failed")
)

// Outcome says how a confirmed message was applied.
type Outcome int

const (
	// Appended means the message was new and inserted as its own row.
	Appended Outcome = iota
	// Matched means the message confirmed a pending placeholder in place.
	Matched
	// Duplicate means a row with the same id already existed.
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Matched:
		return "matched"
	case Duplicate:
		return "duplicate"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result is the effect of one Confirm call.
type Result struct {
	Outcome Outcome
	Message store.Message
	// PreviousID is the placeholder id replaced by a Matched result.
	PreviousID string
	// PendingSince is when the replaced placeholder was last dispatched.
	PendingSince time.Time
	// Changed is false for a Duplicate that carried nothing new.
	Changed bool
}

type placeholder struct {
	clientID string
	sender   string
	content  string
	since    time.Time
	failed   bool
}

// Reconciler owns the optimistic send queue. It is not safe for concurrent
// use; the hub event loop drives it.
type Reconciler struct {
	store   *store.Store
	timeout time.Duration
	logger  *zap.Logger
	seq     uint64
	queues  map[string][]*placeholder
}

// NewReconciler creates a reconciler writing to s.
func NewReconciler(s *store.Store, timeout time.Duration, logger *zap.Logger) *Reconciler {
	if timeout <= 0 {
		timeout = DefaultPendingTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:   s,
		timeout: timeout,
		logger:  logger,
		queues:  make(map[string][]*placeholder),
	}
}

// Send inserts an optimistic pending message with a fresh temporary id.
func (r *Reconciler) Send(conversationID, sender, content string, now time.Time) store.Message {
	r.seq++
	id := fmt.Sprintf("tmp-%d", r.seq)
	msg := store.Message{
		ID:             id,
		ClientID:       id,
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		CreatedAt:      now,
		Delivery:       store.StatusPending,
		ReadBy:         store.NewUserSet(),
	}
	r.store.Insert(msg)
	r.queues[conversationID] = append(r.queues[conversationID], &placeholder{
		clientID: id,
		sender:   sender,
		content:  content,
		since:    now,
	})
	return msg
}

// Confirm applies a server-confirmed message. It replaces the oldest
// unmatched placeholder with the same sender and content, or inserts the
// message as new. Redelivery of a known id only merges.
func (r *Reconciler) Confirm(msg store.Message) Result {
	return r.confirm(msg, false)
}

func (r *Reconciler) confirm(msg store.Message, history bool) Result {
	if msg.Delivery == "" || !msg.Confirmed() {
		msg.Delivery = store.StatusSent
	}

	if r.store.Has(msg.ConversationID, msg.ID) {
		merged, changed := r.store.Merge(msg)
		return Result{Outcome: Duplicate, Message: merged, Changed: changed}
	}

	if p := r.take(msg, history); p != nil {
		msg.ClientID = p.clientID
		r.store.Replace(msg.ConversationID, p.clientID, msg)
		confirmed, _ := r.store.Get(msg.ConversationID, msg.ID)
		r.logger.Debug("placeholder confirmed",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("client_id", p.clientID),
			zap.String("msg_id", msg.ID))
		return Result{Outcome: Matched, Message: confirmed, PreviousID: p.clientID, PendingSince: p.since, Changed: true}
	}

	r.store.Insert(msg)
	inserted, _ := r.store.Get(msg.ConversationID, msg.ID)
	return Result{Outcome: Appended, Message: inserted, Changed: true}
}

// take removes and returns the oldest placeholder matching msg. History is
// only matched to placeholders it is not much older than.
func (r *Reconciler) take(msg store.Message, history bool) *placeholder {
	queue := r.queues[msg.ConversationID]
	i := slices.IndexFunc(queue, func(p *placeholder) bool {
		if p.sender != msg.Sender || p.content != msg.Content {
			return false
		}
		if !history || msg.CreatedAt.IsZero() {
			return true
		}
		return !msg.CreatedAt.Before(p.since.Add(-matchSkew))
	})
	if i < 0 {
		return nil
	}
	p := queue[i]
	r.queues[msg.ConversationID] = slices.Delete(queue, i, i+1)
	if len(r.queues[msg.ConversationID]) == 0 {
		delete(r.queues, msg.ConversationID)
	}
	return p
}

// Hydrate applies a batch of pull-layer messages through the same matching
// path as live events, oldest first.
func (r *Reconciler) Hydrate(conversationID string, msgs []store.Message) []Result {
	sorted := slices.Clone(msgs)
	slices.SortStableFunc(sorted, func(a, b store.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	out := make([]Result, 0, len(sorted))
	for _, m := range sorted {
		m.ConversationID = conversationID
		out = append(out, r.confirm(m, true))
	}
	return out
}

// Sweep fails every placeholder pending for at least the timeout and returns
// the failed rows. Failed placeholders stay matchable so a late confirmation
// still replaces them.
func (r *Reconciler) Sweep(now time.Time) []store.Message {
	var failed []store.Message
	for conv, queue := range r.queues {
		for _, p := range queue {
			if p.failed || now.Sub(p.since) < r.timeout {
				continue
			}
			p.failed = true
			m, ok := r.store.Update(conv, p.clientID, func(m *store.Message) {
				m.Delivery = store.StatusFailed
			})
			if ok {
				failed = append(failed, m)
			}
		}
	}
	slices.SortFunc(failed, func(a, b store.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return failed
}

// Resend moves a failed placeholder back to pending and restarts its timer.
func (r *Reconciler) Resend(conversationID, clientID string, now time.Time) (store.Message, error) {
	i := slices.IndexFunc(r.queues[conversationID], func(p *placeholder) bool {
		return p.clientID == clientID
	})
	if i < 0 {
		return store.Message{}, fmt.Errorf("%w: %s", ErrUnknownPlaceholder, clientID)
	}
	p := r.queues[conversationID][i]
	if !p.failed {
		return store.Message{}, fmt.Errorf("%w: %s", ErrNotFailed, clientID)
	}
	p.failed = false
	p.since = now
	m, _ := r.store.Update(conversationID, clientID, func(m *store.Message) {
		m.Delivery = store.StatusPending
	})
	return m, nil
}

// Pending returns the placeholders of a conversation, oldest first.
func (r *Reconciler) Pending(conversationID string) []string {
	var out []string
	for _, p := range r.queues[conversationID] {
		out = append(out, p.clientID)
	}
	return out
}

// Forget drops the placeholders of a deleted conversation.
func (r *Reconciler) Forget(conversationID string) {
	delete(r.queues, conversationID)
}

// FromWire converts a protocol message into a store row.
func FromWire(conversationID string, m protocol.Message) store.Message {
	if m.ConversationID != "" && conversationID == "" {
		conversationID = m.ConversationID
	}
	msg := store.Message{
		ID:             m.ID,
		ConversationID: conversationID,
		Sender:         m.Sender,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		Delivery:       store.StatusSent,
		ReadBy:         store.NewUserSet(m.ReadBy...),
		Edited:         m.Edited,
		Deleted:        m.Deleted,
	}
	if msg.Deleted {
		msg.Content = ""
	}
	return msg
}
