package outbox

import (
	"context"
	"slices"
	"time"

	"github.com/matheus3301/chatsync/internal/protocol"
	"go.uber.org/zap"
)

// Dispatcher delivers commands over the push channel.
type Dispatcher interface {
	Send(ctx context.Context, cmd protocol.Command) error
}

// EntryStatus is the dispatch state of an outbox entry.
type EntryStatus string

const (
	Queued     EntryStatus = "queued"
	Dispatched EntryStatus = "dispatched"
	Failed     EntryStatus = "failed"
)

// Entry is one outgoing message waiting for its confirmation.
type Entry struct {
	ClientMsgID    string
	ConversationID string
	Body           string
	Status         EntryStatus
	Attempts       int
	LastError      string
	QueuedAt       time.Time
}

// Outbox holds outgoing messages until the server confirms them. Entries are
// dispatched in the order they were queued. It is owned by the hub event loop.
type Outbox struct {
	sender  Dispatcher
	logger  *zap.Logger
	entries []*Entry
}

// New creates an outbox dispatching through sender.
func New(sender Dispatcher, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{sender: sender, logger: logger}
}

func (o *Outbox) find(clientMsgID string) *Entry {
	i := slices.IndexFunc(o.entries, func(e *Entry) bool { return e.ClientMsgID == clientMsgID })
	if i < 0 {
		return nil
	}
	return o.entries[i]
}

// Queue adds a message to the outbox.
func (o *Outbox) Queue(clientMsgID, conversationID, body string, now time.Time) {
	if o.find(clientMsgID) != nil {
		return
	}
	o.entries = append(o.entries, &Entry{
		ClientMsgID:    clientMsgID,
		ConversationID: conversationID,
		Body:           body,
		Status:         Queued,
		QueuedAt:       now,
	})
}

// Dispatch sends every queued entry in order. It stops at the first error,
// leaving that entry and the ones behind it queued for the next attempt, and
// returns how many were dispatched.
func (o *Outbox) Dispatch(ctx context.Context) int {
	sent := 0
	for _, e := range o.entries {
		if e.Status != Queued {
			continue
		}
		e.Attempts++
		if err := o.sender.Send(ctx, protocol.Send(e.ConversationID, e.Body)); err != nil {
			e.LastError = err.Error()
			o.logger.Debug("dispatch deferred",
				zap.String("client_msg_id", e.ClientMsgID),
				zap.Error(err))
			break
		}
		e.Status = Dispatched
		e.LastError = ""
		sent++
		o.logger.Info("message dispatched",
			zap.String("client_msg_id", e.ClientMsgID),
			zap.String("conversation_id", e.ConversationID))
	}
	return sent
}

// Ack removes an entry once its confirmation arrived.
func (o *Outbox) Ack(clientMsgID string) bool {
	n := len(o.entries)
	o.entries = slices.DeleteFunc(o.entries, func(e *Entry) bool { return e.ClientMsgID == clientMsgID })
	return len(o.entries) != n
}

// Fail marks an entry failed; it will not be dispatched again until Requeue.
func (o *Outbox) Fail(clientMsgID string) bool {
	e := o.find(clientMsgID)
	if e == nil {
		return false
	}
	e.Status = Failed
	return true
}

// Requeue moves a failed entry back to queued.
func (o *Outbox) Requeue(clientMsgID string) bool {
	e := o.find(clientMsgID)
	if e == nil || e.Status != Failed {
		return false
	}
	e.Status = Queued
	return true
}

// Forget drops every entry of a conversation.
func (o *Outbox) Forget(conversationID string) {
	o.entries = slices.DeleteFunc(o.entries, func(e *Entry) bool { return e.ConversationID == conversationID })
}

// Entries returns a copy of the outbox contents in queue order.
func (o *Outbox) Entries() []Entry {
	out := make([]Entry, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, *e)
	}
	return out
}
