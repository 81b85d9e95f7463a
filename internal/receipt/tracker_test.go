package receipt

import (
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/store"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		m    store.Message
		want store.Status
	}{
		{"pending untouched", store.Message{Sender: "u1", Delivery: store.StatusPending, ReadBy: store.NewUserSet("u2")}, store.StatusPending},
		{"failed untouched", store.Message{Sender: "u1", Delivery: store.StatusFailed}, store.StatusFailed},
		{"no readers", store.Message{Sender: "u1", Delivery: store.StatusSent, ReadBy: store.NewUserSet()}, store.StatusSent},
		{"only sender", store.Message{Sender: "u1", Delivery: store.StatusSent, ReadBy: store.NewUserSet("u1")}, store.StatusDelivered},
		{"someone else", store.Message{Sender: "u1", Delivery: store.StatusDelivered, ReadBy: store.NewUserSet("u1", "u2")}, store.StatusSeen},
		{"other without sender", store.Message{Sender: "u1", Delivery: store.StatusSent, ReadBy: store.NewUserSet("u3")}, store.StatusSeen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.m); got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestApplySeenFlipsDeliveredToSeen(t *testing.T) {
	r := require.New(t)
	s := store.New()
	now := time.Now()
	for i, id := range []string{"m1", "m2"} {
		s.Insert(store.Message{
			ID: id, ConversationID: "c1", Sender: "u1", Content: "x",
			CreatedAt: now.Add(time.Duration(i) * time.Second),
			Delivery:  store.StatusDelivered, ReadBy: store.NewUserSet("u1"),
		})
	}
	s.Insert(store.Message{ID: "tmp-1", ClientID: "tmp-1", ConversationID: "c1", Sender: "u1", CreatedAt: now.Add(time.Minute), Delivery: store.StatusPending})

	tr := NewTracker(s)
	changed := tr.ApplySeen("c1", "u2", now)
	r.Len(changed, 2)

	for _, m := range s.List("c1", "") {
		if m.ID == "tmp-1" {
			r.Equal(store.StatusPending, m.Status())
			r.False(m.ReadBy.Has("u2"))
			continue
		}
		r.Equal(store.StatusSeen, m.Status())
		r.True(m.ReadBy.Has("u2"))
	}

	// Applying the same receipt again changes nothing.
	r.Empty(tr.ApplySeen("c1", "u2", now))
}

func TestRefresh(t *testing.T) {
	s := store.New()
	s.Insert(store.Message{ID: "m1", ConversationID: "c1", Sender: "u1", Delivery: store.StatusSent, ReadBy: store.NewUserSet("u1")})

	tr := NewTracker(s)
	m, changed := tr.Refresh("c1", "m1")
	require.True(t, changed)
	require.Equal(t, store.StatusDelivered, m.Delivery)

	_, changed = tr.Refresh("c1", "m1")
	require.False(t, changed)
}

func TestRefreshAppliesEarlierReceipt(t *testing.T) {
	r := require.New(t)
	s := store.New()
	now := time.Now()
	tr := NewTracker(s)

	r.Empty(tr.ApplySeen("c1", "u2", now))

	s.Insert(store.Message{ID: "m1", ConversationID: "c1", Sender: "u1", CreatedAt: now.Add(-time.Second), Delivery: store.StatusSent, ReadBy: store.NewUserSet("u1")})
	s.Insert(store.Message{ID: "m2", ConversationID: "c1", Sender: "u1", CreatedAt: now.Add(time.Second), Delivery: store.StatusSent, ReadBy: store.NewUserSet("u1")})
	s.Insert(store.Message{ID: "tmp-1", ClientID: "tmp-1", ConversationID: "c1", Sender: "u1", CreatedAt: now.Add(-time.Minute), Delivery: store.StatusPending})

	m, changed := tr.Refresh("c1", "m1")
	r.True(changed)
	r.Equal(store.StatusSeen, m.Delivery)
	r.True(m.ReadBy.Has("u2"))

	m, changed = tr.Refresh("c1", "m2")
	r.True(changed)
	r.Equal(store.StatusDelivered, m.Delivery)
	r.False(m.ReadBy.Has("u2"))

	m, _ = tr.Refresh("c1", "tmp-1")
	r.Equal(store.StatusPending, m.Delivery)
	r.False(m.ReadBy.Has("u2"))

	tr.Forget("c1")
	s.Insert(store.Message{ID: "m0", ConversationID: "c1", Sender: "u1", CreatedAt: now.Add(-time.Hour), Delivery: store.StatusSent, ReadBy: store.NewUserSet("u1")})
	m, _ = tr.Refresh("c1", "m0")
	r.Equal(store.StatusDelivered, m.Delivery)
}

func TestApplySeenCoversKnownLastMessage(t *testing.T) {
	s := store.New()
	now := time.Now()
	last := store.Message{ID: "m9", ConversationID: "c1", Sender: "u1", CreatedAt: now.Add(time.Minute), Delivery: store.StatusSent}
	s.UpsertConversation(store.Conversation{ID: "c1", LastMessage: &last})

	tr := NewTracker(s)
	tr.ApplySeen("c1", "u2", now)

	// The server's clock is ahead of ours; the receipt still covers the
	// newest message the conversation list reported.
	s.Insert(store.Message{ID: "m9", ConversationID: "c1", Sender: "u1", CreatedAt: last.CreatedAt, Delivery: store.StatusSent, ReadBy: store.NewUserSet("u1")})
	m, _ := tr.Refresh("c1", "m9")
	require.Equal(t, store.StatusSeen, m.Delivery)
}
