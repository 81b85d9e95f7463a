package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/protocol"
	"go.uber.org/zap"
)

// mockSender records calls and fails while err is set.
type mockSender struct {
	calls []protocol.SendMessage
	err   error
}

func (m *mockSender) Send(_ context.Context, cmd protocol.Command) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, cmd.Payload.(protocol.SendMessage))
	return nil
}

func TestDispatchSendsInQueueOrder(t *testing.T) {
	mock := &mockSender{}
	logger, _ := zap.NewDevelopment()
	o := New(mock, logger)
	now := time.Now()

	o.Queue("tmp-1", "c1", "first", now)
	o.Queue("tmp-2", "c2", "second", now)
	o.Queue("tmp-1", "c1", "first", now) // already queued

	if n := o.Dispatch(context.Background()); n != 2 {
		t.Fatalf("Dispatch() = %d, want 2", n)
	}
	if len(mock.calls) != 2 || mock.calls[0].Content != "first" || mock.calls[1].ConversationID != "c2" {
		t.Errorf("calls = %+v", mock.calls)
	}

	// Dispatched entries are not sent twice.
	if n := o.Dispatch(context.Background()); n != 0 {
		t.Errorf("second Dispatch() = %d, want 0", n)
	}
}

func TestDispatchWhileDisconnectedKeepsQueued(t *testing.T) {
	mock := &mockSender{err: errors.New("not connected")}
	o := New(mock, nil)
	o.Queue("tmp-1", "c1", "hello", time.Now())

	if n := o.Dispatch(context.Background()); n != 0 {
		t.Fatalf("Dispatch() = %d, want 0", n)
	}
	entries := o.Entries()
	if entries[0].Status != Queued || entries[0].LastError == "" {
		t.Errorf("entry = %+v, want queued with error recorded", entries[0])
	}

	// Connection comes back.
	mock.err = nil
	if n := o.Dispatch(context.Background()); n != 1 {
		t.Fatalf("Dispatch() after reconnect = %d, want 1", n)
	}
	if got := o.Entries()[0]; got.Status != Dispatched || got.Attempts != 2 {
		t.Errorf("entry = %+v, want dispatched after 2 attempts", got)
	}
}

func TestAckFailRequeue(t *testing.T) {
	mock := &mockSender{}
	o := New(mock, nil)
	o.Queue("tmp-1", "c1", "a", time.Now())
	o.Queue("tmp-2", "c1", "b", time.Now())
	o.Dispatch(context.Background())

	if !o.Ack("tmp-1") {
		t.Error("Ack(tmp-1) = false")
	}
	if o.Ack("tmp-1") {
		t.Error("second Ack(tmp-1) = true")
	}

	if o.Requeue("tmp-2") {
		t.Error("Requeue of a dispatched entry should fail")
	}
	o.Fail("tmp-2")
	if !o.Requeue("tmp-2") {
		t.Fatal("Requeue(tmp-2) = false")
	}
	if n := o.Dispatch(context.Background()); n != 1 {
		t.Errorf("Dispatch() after requeue = %d, want 1", n)
	}
	if len(mock.calls) != 3 {
		t.Errorf("got %d send calls, want 3", len(mock.calls))
	}
}

func TestForget(t *testing.T) {
	o := New(&mockSender{}, nil)
	o.Queue("tmp-1", "c1", "a", time.Now())
	o.Queue("tmp-2", "c2", "b", time.Now())
	o.Forget("c1")

	entries := o.Entries()
	if len(entries) != 1 || entries[0].ClientMsgID != "tmp-2" {
		t.Errorf("entries = %+v, want only tmp-2", entries)
	}
}
