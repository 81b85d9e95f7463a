package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestApplyIgnoresStaleEvents(t *testing.T) {
	r := require.New(t)
	tr := NewTracker()

	r.True(tr.Apply("u1", false, t0.Add(time.Minute)))
	r.False(tr.Apply("u1", true, t0))
	r.False(tr.Get("u1").Online)

	r.True(tr.Apply("u1", true, t0.Add(2*time.Minute)))
	r.True(tr.Get("u1").Online)

	// Without a timestamp the event applies and keeps the last known lastSeenAt.
	r.True(tr.Apply("u1", false, time.Time{}))
	r.Equal(t0.Add(2*time.Minute), tr.Get("u1").LastSeenAt)
}

func TestResetReturnsUsersToUnknown(t *testing.T) {
	tr := NewTracker()
	tr.Apply("u1", true, t0)
	tr.Reset()

	e := tr.Get("u1")
	require.False(t, e.Known)
	require.Empty(t, tr.Online())

	// A stale event from before the reset is accepted again.
	require.True(t, tr.Apply("u1", true, t0.Add(-time.Hour)))
}

func TestTypingExpiresWithoutStop(t *testing.T) {
	r := require.New(t)
	ty := NewTyping(0)

	r.True(ty.Start("c1", "u2", t0))
	r.Equal([]string{"u2"}, ty.Typers("c1", t0.Add(time.Second)))

	r.Empty(ty.Sweep(t0.Add(1400 * time.Millisecond)))
	r.Equal([]string{"c1"}, ty.Sweep(t0.Add(1500*time.Millisecond)))
	r.Empty(ty.Typers("c1", t0.Add(1500*time.Millisecond)))
}

func TestTypingRefreshExtendsExpiry(t *testing.T) {
	r := require.New(t)
	ty := NewTyping(time.Second)

	r.True(ty.Start("c1", "u2", t0))
	r.False(ty.Start("c1", "u2", t0.Add(800*time.Millisecond)))
	r.Empty(ty.Sweep(t0.Add(1500 * time.Millisecond)))
	r.Equal([]string{"c1"}, ty.Sweep(t0.Add(1800*time.Millisecond)))
}

func TestTypingStop(t *testing.T) {
	ty := NewTyping(time.Second)
	ty.Start("c1", "u2", t0)
	ty.Start("c1", "u3", t0)

	require.True(t, ty.Stop("c1", "u2"))
	require.False(t, ty.Stop("c1", "u2"))
	require.Equal(t, []string{"u3"}, ty.Typers("c1", t0))
}

func TestLocalDebounce(t *testing.T) {
	r := require.New(t)
	l := NewLocal(1500 * time.Millisecond)

	r.True(l.Keystroke("c1", t0))
	r.False(l.Keystroke("c1", t0.Add(time.Second)))
	r.Empty(l.Sweep(t0.Add(2 * time.Second)))
	r.Equal([]string{"c1"}, l.Sweep(t0.Add(2500*time.Millisecond)))

	r.True(l.Keystroke("c1", t0.Add(3*time.Second)))
	r.True(l.Stop("c1"))
	r.False(l.Stop("c1"))
}
