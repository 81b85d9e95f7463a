package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by prefix, so "message." matches every
// message kind.
const (
	KindStatusChanged = "session.status_changed"

	KindConnected       = "conn.connected"
	KindDisconnected    = "conn.disconnected"
	KindConnError       = "conn.error"
	KindUnauthenticated = "conn.unauthenticated"

	KindMessageUpserted = "message.upserted"
	KindMessageReplaced = "message.replaced"
	KindMessageFailed   = "message.failed"
	KindMessageEdited   = "message.edited"
	KindMessageDeleted  = "message.deleted"

	KindConversationUpserted = "conversation.upserted"
	KindConversationRemoved  = "conversation.removed"

	KindReceiptSeen     = "receipt.seen"
	KindUnreadChanged   = "unread.changed"
	KindPresenceChanged = "presence.changed"
	KindTypingChanged   = "typing.changed"
	KindWindowChanged   = "window.changed"
)

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
