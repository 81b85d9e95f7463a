package unread

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIncrementSkipsSelfAndActive(t *testing.T) {
	r := require.New(t)
	l := New("me")

	r.True(l.Increment("c1", "u2"))
	r.True(l.Increment("c1", "u2"))
	r.False(l.Increment("c1", "me"))
	r.Equal(2, l.Count("c1"))

	l.SetActive("c2")
	r.False(l.Increment("c2", "u2"))
	r.Equal(0, l.Count("c2"))
	r.Equal(2, l.Total())
}

func TestFocusClearsOnlyWithMessages(t *testing.T) {
	r := require.New(t)
	l := New("me")
	l.Increment("c1", "u2")

	r.False(l.Focus("c1", false))
	r.Equal(1, l.Count("c1"))
	r.Equal("c1", l.Active())

	r.True(l.Focus("c1", true))
	r.Equal(0, l.Count("c1"))
}

func TestClearFromReceipt(t *testing.T) {
	l := New("me")
	l.Increment("c1", "u2")
	require.True(t, l.ClearFromReceipt("c1"))
	require.Equal(t, 0, l.Count("c1"))
	require.False(t, l.ClearFromReceipt("c1"))
}

func TestHydrateNeverOverwritesLocal(t *testing.T) {
	r := require.New(t)
	l := New("me")
	l.Increment("c1", "u2")
	l.Focus("c3", true)

	seeded := l.Hydrate(map[string]int{"c1": 7, "c2": 4, "c3": 9, "c4": -1})
	r.ElementsMatch([]string{"c2", "c4"}, seeded)
	r.Equal(1, l.Count("c1"))
	r.Equal(4, l.Count("c2"))
	r.Equal(0, l.Count("c3"))
	r.Equal(0, l.Count("c4"))
	r.Equal(5, l.Total())
}

func TestRemove(t *testing.T) {
	l := New("me")
	l.Increment("c1", "u2")
	l.SetActive("c1")
	l.Remove("c1")
	require.Equal(t, 0, l.Total())
	require.Empty(t, l.Active())
	require.NotContains(t, l.Snapshot(), "c1")
}
