package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/conn"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/pull"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	mu        sync.Mutex
	handlers  map[protocol.EventType][]conn.Handler
	lifecycle []func(conn.Lifecycle)
	rooms     conn.RoomSource
	sent      []protocol.Command
	offline   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[protocol.EventType][]conn.Handler)}
}

func (f *fakeConn) On(t protocol.EventType, h conn.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[t] = append(f.handlers[t], h)
	return func() {}
}

func (f *fakeConn) OnLifecycle(h func(conn.Lifecycle)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lifecycle = append(f.lifecycle, h)
	return func() {}
}

func (f *fakeConn) SetRoomSource(src conn.RoomSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = src
}

func (f *fakeConn) Send(_ context.Context, cmd protocol.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return conn.ErrNotConnected
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeConn) setOffline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = v
}

func (f *fakeConn) emit(t protocol.EventType, payload any) {
	f.mu.Lock()
	hs := append([]conn.Handler(nil), f.handlers[t]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(protocol.Event{Type: t, Payload: payload})
	}
}

func (f *fakeConn) signal(l conn.Lifecycle) {
	f.mu.Lock()
	hs := append(([]func(conn.Lifecycle))(nil), f.lifecycle...)
	f.mu.Unlock()
	for _, h := range hs {
		h(l)
	}
}

func (f *fakeConn) commands(t protocol.CommandType) []protocol.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Command
	for _, c := range f.sent {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

type fakePuller struct {
	mu        sync.Mutex
	list      pull.ConversationList
	listErr   error
	messages  map[string][]protocol.Message
	msgsErr   error
	started   pull.StartedConversation
	listCalls int
	deleted   []string
	edited    map[string]string
}

func (p *fakePuller) GetConversations(context.Context) (pull.ConversationList, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.listErr != nil {
		return pull.ConversationList{}, p.listErr
	}
	return p.list, nil
}

func (p *fakePuller) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

func (p *fakePuller) GetMessages(_ context.Context, id string) ([]protocol.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.msgsErr != nil {
		return nil, p.msgsErr
	}
	return p.messages[id], nil
}

func (p *fakePuller) StartConversation(context.Context, string) (pull.StartedConversation, error) {
	return p.started, nil
}

func (p *fakePuller) EditMessage(_ context.Context, id, content string) (protocol.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.edited == nil {
		p.edited = make(map[string]string)
	}
	p.edited[id] = content
	return protocol.Message{ID: id, Content: content, Edited: true}, nil
}

func (p *fakePuller) DeleteMessage(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return nil
}

func (p *fakePuller) DeleteConversation(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
	return nil
}

func conversation(id, other string, unread int) pull.Conversation {
	return pull.Conversation{ID: id, Participants: []string{"me", other}, UnreadCount: unread}
}

func newTestHub(t *testing.T, cfg Config) (*Hub, *fakeConn, *fakePuller, *bus.Bus) {
	t.Helper()
	fc := newFakeConn()
	fp := &fakePuller{
		list: pull.ConversationList{
			UserID: "me",
			Conversations: []pull.Conversation{
				conversation("c1", "bob", 0),
				conversation("c2", "ann", 2),
				conversation("c3", "eve", 0),
				conversation("c4", "joe", 0),
			},
		},
		messages: make(map[string][]protocol.Message),
	}
	b := bus.New()
	h := New(fc, fp, b, zap.NewNop(), cfg)
	h.Start(context.Background())
	t.Cleanup(h.Stop)

	rooms, err := fc.rooms(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2", "c3", "c4"}, rooms)
	return h, fc, fp, b
}

func wireMessage(id, sender, content string, at time.Time) protocol.Message {
	return protocol.Message{ID: id, Sender: sender, Content: content, CreatedAt: at}
}

func TestRoomsHydratesRegistry(t *testing.T) {
	h, _, _, _ := newTestHub(t, Config{})
	ctx := context.Background()

	self, err := h.Self(ctx)
	require.NoError(t, err)
	require.Equal(t, "me", self)

	counts, total, err := h.Unread(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts["c2"])
	require.Equal(t, 2, total)

	convs, err := h.Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 4)
}

func TestRoomsFallsBackToKnownRooms(t *testing.T) {
	_, fc, fp, _ := newTestHub(t, Config{})
	fp.mu.Lock()
	fp.listErr = errors.New("backend down")
	fp.mu.Unlock()

	rooms, err := fc.rooms(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2", "c3", "c4"}, rooms)

	fp.mu.Lock()
	fp.listErr = fmt.Errorf("list: %w", auth.ErrUnauthenticated)
	fp.mu.Unlock()
	_, err = fc.rooms(context.Background())
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestDuplicateNewMessageStoredOnce(t *testing.T) {
	h, fc, _, _ := newTestHub(t, Config{})
	at := time.Now()
	evt := protocol.NewMessage{ConversationID: "c1", Message: wireMessage("m1", "bob", "hello", at)}

	fc.emit(protocol.EventNewMessage, evt)
	fc.emit(protocol.EventNewMessage, evt)

	msgs, err := h.Messages(context.Background(), "c1", "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "m1", msgs[0].ID)
}

func TestSendConfirmedInPlace(t *testing.T) {
	h, fc, _, b := newTestHub(t, Config{})
	ctx := context.Background()
	events, unsub := b.Subscribe(bus.KindMessageReplaced, 4)
	defer unsub()

	fc.emit(protocol.EventNewMessage, protocol.NewMessage{
		ConversationID: "c1",
		Message:        wireMessage("m1", "bob", "hey", time.Now().Add(-time.Minute)),
	})
	pending, err := h.Send(ctx, "c1", "hi")
	require.NoError(t, err)
	require.Equal(t, store.StatusPending, pending.Status())
	require.Len(t, fc.commands(protocol.CmdSendMessage), 1)

	fc.emit(protocol.EventNewMessage, protocol.NewMessage{
		ConversationID: "c1",
		Message:        wireMessage("srv-2", "me", "hi", time.Now()),
	})

	msgs, err := h.Messages(ctx, "c1", "")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "srv-2", msgs[1].ID)
	require.Equal(t, pending.ID, msgs[1].ClientID)
	require.Equal(t, store.StatusSent, msgs[1].Status())

	entries, err := h.Outbox(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	select {
	case evt := <-events:
		change := evt.Payload.(store.MessageChange)
		require.Equal(t, pending.ID, change.PreviousID)
	case <-time.After(time.Second):
		t.Fatal("no message.replaced event")
	}

	counts, _, err := h.Unread(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts["c1"])
}

func TestSendRejectsUnknownConversation(t *testing.T) {
	h, _, _, _ := newTestHub(t, Config{})
	_, err := h.Send(context.Background(), "nope", "hi")
	require.ErrorIs(t, err, ErrUnknownConversation)

	_, err = h.Send(context.Background(), "c1", "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestBackgroundUnreadClearedOnFocus(t *testing.T) {
	h, fc, fp, _ := newTestHub(t, Config{})
	ctx := context.Background()
	at := time.Now()
	m1 := wireMessage("m1", "bob", "one", at)
	m2 := wireMessage("m2", "bob", "two", at.Add(time.Second))
	fp.mu.Lock()
	fp.messages["c1"] = []protocol.Message{m1, m2}
	fp.mu.Unlock()

	fc.emit(protocol.EventNewMessage, protocol.NewMessage{ConversationID: "c1", Message: m1})
	fc.emit(protocol.EventNewMessage, protocol.NewMessage{ConversationID: "c1", Message: m2})
	fc.emit(protocol.EventNewMessage, protocol.NewMessage{
		ConversationID: "c1",
		Message:        wireMessage("m3", "me", "mine", at.Add(2*time.Second)),
	})

	counts, _, err := h.Unread(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts["c1"])
	require.Empty(t, fc.commands(protocol.CmdMarkAsRead))

	_, err = h.OpenWindow(ctx, "c1")
	require.NoError(t, err)

	counts, _, err = h.Unread(ctx)
	require.NoError(t, err)
	require.Zero(t, counts["c1"])
	require.Len(t, fc.commands(protocol.CmdMarkAsRead), 1)

	msgs, err := h.Messages(ctx, "c1", "")
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	// Messages arriving in the focused window are acknowledged right away.
	fc.emit(protocol.EventNewMessage, protocol.NewMessage{
		ConversationID: "c1",
		Message:        wireMessage("m4", "bob", "four", at.Add(3*time.Second)),
	})
	counts, _, err = h.Unread(ctx)
	require.NoError(t, err)
	require.Zero(t, counts["c1"])
	require.Len(t, fc.commands(protocol.CmdMarkAsRead), 2)
}

func TestMinimizedWindowKeepsCounting(t *testing.T) {
	h, fc, _, _ := newTestHub(t, Config{})
	ctx := context.Background()

	_, err := h.OpenWindow(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, h.MinimizeWindow(ctx, "c1"))

	fc.emit(protocol.EventNewMessage, protocol.NewMessage{
		ConversationID: "c1",
		Message:        wireMessage("m1", "bob", "psst", time.Now()),
	})

	counts, _, err := h.Unread(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts["c1"])
	require.Empty(t, fc.commands(protocol.CmdMarkAsRead))

	require.NoError(t, h.FocusWindow(ctx, "c1"))
	counts, _, err = h.Unread(ctx)
	require.NoError(t, err)
	require.Zero(t, counts["c1"])
}

func TestSeenUpdatesStatusAndClearsOwnUnread(t *testing.T) {
	h, fc, _, _ := newTestHub(t, Config{})
	ctx := context.Background()

	m1 := wireMessage("m1", "me", "ping", time.Now())
	m1.ReadBy = []string{"me"}
	fc.emit(protocol.EventNewMessage, protocol.NewMessage{ConversationID: "c1", Message: m1})

	msgs, err := h.Messages(ctx, "c1", "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, store.StatusDelivered, msgs[0].Status())

	fc.emit(protocol.EventSeen, protocol.Seen{ConversationID: "c1", UserID: "bob"})

	msgs, err = h.Messages(ctx, "c1", "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, store.StatusSeen, msgs[0].Status())

	fc.emit(protocol.EventSeen, protocol.Seen{ConversationID: "c2", UserID: "me"})
	counts, total, err := h.Unread(ctx)
	require.NoError(t, err)
	require.Zero(t, counts["c2"])
	require.Zero(t, total)
}

func TestSeenBeforeHistoryLoads(t *testing.T) {
	at := time.Now().Add(-time.Minute)
	old := wireMessage("m1", "me", "ping", at)
	old.ReadBy = []string{"me"}
	later := wireMessage("m2", "me", "after", time.Now().Add(time.Hour))
	later.ReadBy = []string{"me"}

	statuses := func(t *testing.T, h *Hub) map[string]store.Status {
		msgs, err := h.Messages(context.Background(), "c1", "")
		require.NoError(t, err)
		out := make(map[string]store.Status, len(msgs))
		for _, m := range msgs {
			out[m.ID] = m.Status()
		}
		return out
	}

	t.Run("history first", func(t *testing.T) {
		h, fc, fp, _ := newTestHub(t, Config{})
		fp.mu.Lock()
		fp.messages["c1"] = []protocol.Message{old, later}
		fp.mu.Unlock()
		require.NoError(t, h.LoadMessages(context.Background(), "c1"))
		fc.emit(protocol.EventSeen, protocol.Seen{ConversationID: "c1", UserID: "bob"})

		got := statuses(t, h)
		require.Equal(t, store.StatusSeen, got["m1"])
		require.Equal(t, store.StatusSeen, got["m2"])
	})

	t.Run("seen first", func(t *testing.T) {
		h, fc, fp, _ := newTestHub(t, Config{})
		fc.emit(protocol.EventSeen, protocol.Seen{ConversationID: "c1", UserID: "bob"})
		fp.mu.Lock()
		fp.messages["c1"] = []protocol.Message{old, later}
		fp.mu.Unlock()
		require.NoError(t, h.LoadMessages(context.Background(), "c1"))

		got := statuses(t, h)
		require.Equal(t, store.StatusSeen, got["m1"])
		// Written after the receipt; bob has not read it yet.
		require.Equal(t, store.StatusDelivered, got["m2"])
	})
}

func TestFocusedWindowWaitsForHistoryBeforeAcknowledging(t *testing.T) {
	h, fc, fp, _ := newTestHub(t, Config{})
	ctx := context.Background()

	fp.mu.Lock()
	fp.msgsErr = errors.New("backend down")
	fp.mu.Unlock()
	_, err := h.OpenWindow(ctx, "c1")
	require.Error(t, err)

	fc.emit(protocol.EventNewMessage, protocol.NewMessage{
		ConversationID: "c1",
		Message:        wireMessage("m1", "bob", "hi", time.Now()),
	})
	require.NoError(t, h.FocusWindow(ctx, "c1"))
	require.Empty(t, fc.commands(protocol.CmdMarkAsRead))

	fp.mu.Lock()
	fp.msgsErr = nil
	fp.mu.Unlock()
	require.NoError(t, h.LoadMessages(ctx, "c1"))
	require.Len(t, fc.commands(protocol.CmdMarkAsRead), 1)
}

func TestPendingTimesOutThenResends(t *testing.T) {
	h, fc, _, b := newTestHub(t, Config{PendingTimeout: 50 * time.Millisecond, SweepInterval: 10 * time.Millisecond})
	ctx := context.Background()
	failed, unsub := b.Subscribe(bus.KindMessageFailed, 4)
	defer unsub()

	fc.setOffline(true)
	m, err := h.Send(ctx, "c1", "lost")
	require.NoError(t, err)

	_, err = h.Resend(ctx, "c1", m.ID)
	require.ErrorIs(t, err, ErrNotFailed)

	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("message never failed")
	}
	msgs, err := h.Messages(ctx, "c1", "")
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, msgs[0].Status())

	entries, err := h.Outbox(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, outbox.Failed, entries[0].Status)

	fc.setOffline(false)
	again, err := h.Resend(ctx, "c1", m.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusPending, again.Status())
	require.Len(t, fc.commands(protocol.CmdSendMessage), 1)
}

func TestLateConfirmationReplacesFailed(t *testing.T) {
	h, fc, _, _ := newTestHub(t, Config{PendingTimeout: 20 * time.Millisecond, SweepInterval: 5 * time.Millisecond})
	ctx := context.Background()

	m, err := h.Send(ctx, "c1", "slow")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		msgs, err := h.Messages(ctx, "c1", "")
		return err == nil && msgs[0].Status() == store.StatusFailed
	}, time.Second, 10*time.Millisecond)

	fc.emit(protocol.EventNewMessage, protocol.NewMessage{
		ConversationID: "c1",
		Message:        wireMessage("srv-1", "me", "slow", time.Now()),
	})
	msgs, err := h.Messages(ctx, "c1", "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "srv-1", msgs[0].ID)
	require.Equal(t, m.ID, msgs[0].ClientID)
	require.Equal(t, store.StatusSent, msgs[0].Status())
}

func TestReconnectFlushesOutbox(t *testing.T) {
	h, fc, _, _ := newTestHub(t, Config{})
	ctx := context.Background()

	fc.setOffline(true)
	_, err := h.Send(ctx, "c1", "queued")
	require.NoError(t, err)
	require.Empty(t, fc.commands(protocol.CmdSendMessage))

	fc.setOffline(false)
	fc.signal(conn.Lifecycle{Kind: conn.Connected, Attempt: 1})

	entries, err := h.Outbox(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, outbox.Dispatched, entries[0].Status)
	require.Len(t, fc.commands(protocol.CmdSendMessage), 1)
}

func TestReconnectResetsPresence(t *testing.T) {
	h, fc, _, _ := newTestHub(t, Config{})
	ctx := context.Background()

	fc.emit(protocol.EventPresence, protocol.Presence{UserID: "bob", Online: true, LastSeenAt: time.Now()})
	e, err := h.Presence(ctx, "bob")
	require.NoError(t, err)
	require.True(t, e.Online)

	fc.signal(conn.Lifecycle{Kind: conn.Connected})
	e, err = h.Presence(ctx, "bob")
	require.NoError(t, err)
	require.False(t, e.Known)
}

func TestWindowEvictionIsFIFO(t *testing.T) {
	h, _, _, _ := newTestHub(t, Config{WindowCapacity: 3})
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		evicted, err := h.OpenWindow(ctx, id)
		require.NoError(t, err)
		require.Empty(t, evicted)
	}
	// Reopening restores in place.
	_, err := h.OpenWindow(ctx, "c1")
	require.NoError(t, err)

	evicted, err := h.OpenWindow(ctx, "c4")
	require.NoError(t, err)
	require.Equal(t, "c1", evicted)

	ws, err := h.Windows(ctx)
	require.NoError(t, err)
	ids := make([]string, len(ws.Windows))
	for i, w := range ws.Windows {
		ids[i] = w.ConversationID
	}
	require.Equal(t, []string{"c2", "c3", "c4"}, ids)
	require.Equal(t, "c4", ws.Active)

	_, err = h.OpenWindow(ctx, "c3")
	require.NoError(t, err)
	ws, err = h.Windows(ctx)
	require.NoError(t, err)
	require.Len(t, ws.Windows, 3)
	require.Equal(t, "c3", ws.Windows[1].ConversationID)
}

func TestChatAlertForUnknownConversation(t *testing.T) {
	h, fc, fp, _ := newTestHub(t, Config{})
	ctx := context.Background()

	fc.emit(protocol.EventChatAlert, protocol.ChatAlert{ConversationID: "c9", FromUser: "zed"})
	fc.emit(protocol.EventChatAlert, protocol.ChatAlert{ConversationID: "c9", FromUser: "zed"})

	counts, _, err := h.Unread(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts["c9"])

	joins := fc.commands(protocol.CmdJoinConversations)
	require.Len(t, joins, 1)
	require.Equal(t, []string{"c9"}, joins[0].Payload.(protocol.JoinConversations).ConversationIDs)
	require.Eventually(t, func() bool { return fp.calls() == 2 }, time.Second, 10*time.Millisecond)
}

func TestRemoteTypingExpires(t *testing.T) {
	h, fc, _, _ := newTestHub(t, Config{TypingTimeout: 60 * time.Millisecond, SweepInterval: 10 * time.Millisecond})
	ctx := context.Background()

	fc.emit(protocol.EventTyping, protocol.Typing{ConversationID: "c1", UserID: "bob", IsTyping: true})
	fc.emit(protocol.EventTyping, protocol.Typing{ConversationID: "c1", UserID: "me", IsTyping: true})
	typers, err := h.Typers(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, typers)

	require.Eventually(t, func() bool {
		typers, err := h.Typers(ctx, "c1")
		return err == nil && len(typers) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestLocalTypingDebounced(t *testing.T) {
	h, fc, _, _ := newTestHub(t, Config{TypingTimeout: 40 * time.Millisecond, SweepInterval: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, h.Typing(ctx, "c1"))
	require.NoError(t, h.Typing(ctx, "c1"))
	require.Len(t, fc.commands(protocol.CmdStartTyping), 1)

	require.Eventually(t, func() bool {
		return len(fc.commands(protocol.CmdStopTyping)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestEditAndDeleteOwnMessages(t *testing.T) {
	h, fc, fp, _ := newTestHub(t, Config{})
	ctx := context.Background()
	at := time.Now()

	fc.emit(protocol.EventNewMessage, protocol.NewMessage{ConversationID: "c1", Message: wireMessage("m1", "bob", "theirs", at)})
	fc.emit(protocol.EventNewMessage, protocol.NewMessage{ConversationID: "c1", Message: wireMessage("m2", "me", "mine", at.Add(time.Second))})

	_, err := h.Edit(ctx, "c1", "m1", "nope")
	require.ErrorIs(t, err, ErrNotOwner)

	edited, err := h.Edit(ctx, "c1", "m2", "fixed")
	require.NoError(t, err)
	require.Equal(t, "fixed", edited.Content)
	require.Equal(t, store.StatusEdited, edited.Status())

	require.NoError(t, h.Delete(ctx, "c1", "m2"))
	msgs, err := h.Messages(ctx, "c1", "")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, store.StatusDeleted, msgs[1].Status())
	require.Equal(t, []string{"m2"}, fp.deleted)
}

func TestDeleteConversationRemovesEverything(t *testing.T) {
	h, fc, _, b := newTestHub(t, Config{})
	ctx := context.Background()
	removed, unsub := b.Subscribe(bus.KindConversationRemoved, 1)
	defer unsub()

	_, err := h.OpenWindow(ctx, "c2")
	require.NoError(t, err)
	fc.emit(protocol.EventNewMessage, protocol.NewMessage{ConversationID: "c2", Message: wireMessage("m1", "ann", "x", time.Now())})

	require.NoError(t, h.DeleteConversation(ctx, "c2"))

	convs, err := h.Conversations(ctx)
	require.NoError(t, err)
	for _, c := range convs {
		require.NotEqual(t, "c2", c.ID)
	}
	ws, err := h.Windows(ctx)
	require.NoError(t, err)
	require.Empty(t, ws.Windows)
	_, err = h.Messages(ctx, "c2", "")
	require.ErrorIs(t, err, ErrUnknownConversation)

	select {
	case evt := <-removed:
		require.Equal(t, "c2", evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("no conversation.removed event")
	}
}

func TestStartConversationJoinsAndOpens(t *testing.T) {
	h, fc, fp, _ := newTestHub(t, Config{})
	ctx := context.Background()
	fp.started = pull.StartedConversation{
		Conversation: conversation("c5", "kim", 0),
		Messages:     []protocol.Message{wireMessage("m1", "kim", "hi there", time.Now())},
	}

	c, err := h.StartConversation(ctx, "kim")
	require.NoError(t, err)
	require.Equal(t, "c5", c.ID)

	joins := fc.commands(protocol.CmdJoinConversations)
	require.Len(t, joins, 1)
	ws, err := h.Windows(ctx)
	require.NoError(t, err)
	require.Equal(t, "c5", ws.Active)

	msgs, err := h.Messages(ctx, "c5", "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	// History never counts as unread and the focused window acknowledges it.
	counts, _, err := h.Unread(ctx)
	require.NoError(t, err)
	require.Zero(t, counts["c5"])
	require.Len(t, fc.commands(protocol.CmdMarkAsRead), 1)
}
