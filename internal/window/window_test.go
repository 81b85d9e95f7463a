package window

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenEvictsFirstOpened(t *testing.T) {
	r := require.New(t)
	m := New(3)

	r.Empty(m.Open("a"))
	r.Empty(m.Open("b"))
	r.Empty(m.Open("c"))

	// Using "a" again does not protect it: eviction is by insertion order.
	r.Empty(m.Open("a"))
	r.Equal("a", m.Open("d"))
	r.Equal([]string{"b", "c", "d"}, m.IDs())
	r.Equal("d", m.Active())
}

func TestReopenDoesNotReorder(t *testing.T) {
	r := require.New(t)
	m := New(3)
	m.Open("a")
	m.Open("b")
	m.Open("c")
	m.Minimize("b")

	r.Empty(m.Open("b"))
	r.Equal([]string{"a", "b", "c"}, m.IDs())
	r.Equal(3, m.Len())
	r.False(m.List()[1].Minimized)
}

func TestMinimizeKeepsWindowAndDropsFocus(t *testing.T) {
	r := require.New(t)
	m := New(3)
	m.Open("a")

	r.True(m.CanAcknowledge("a"))
	r.True(m.Minimize("a"))
	r.True(m.IsOpen("a"))
	r.Empty(m.Active())
	r.False(m.CanAcknowledge("a"))

	r.True(m.Focus("a"))
	r.True(m.CanAcknowledge("a"))
}

func TestCloseFromAnyPosition(t *testing.T) {
	r := require.New(t)
	m := New(3)
	m.Open("a")
	m.Open("b")
	m.Open("c")

	r.True(m.Close("b"))
	r.False(m.Close("b"))
	r.Equal([]string{"a", "c"}, m.IDs())
	r.Equal("c", m.Active())

	r.True(m.Close("c"))
	r.Empty(m.Active())
	r.False(m.CanAcknowledge("c"))
}

func TestCanAcknowledgeOnlyFocused(t *testing.T) {
	m := New(2)
	m.Open("a")
	m.Open("b")
	require.False(t, m.CanAcknowledge("a"))
	require.True(t, m.CanAcknowledge("b"))
	require.False(t, m.Focus("zzz"))
	require.False(t, m.CanAcknowledge(""))
}

func TestCapacityDefaults(t *testing.T) {
	require.Equal(t, DefaultCapacity, New(0).Capacity())
	m := New(1)
	m.Open("a")
	require.Equal(t, "a", m.Open("b"))
	require.Equal(t, []string{"b"}, m.IDs())
}
