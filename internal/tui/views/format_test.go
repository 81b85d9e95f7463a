package views

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	require.Equal(t, "👍", clean("👍\U0001F3FB"))
	require.Equal(t, "a[b[]", clean("a[b]"))
	require.Equal(t, "plain", clean("plain"))
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 4, 18, 0, 0, 0, time.Local)
	require.Equal(t, "", formatTimestamp(0, now))
	require.Equal(t, "09:30", formatTimestamp(time.Date(2026, 3, 4, 9, 30, 0, 0, time.Local).UnixMilli(), now))
	require.Equal(t, "03/01", formatTimestamp(time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local).UnixMilli(), now))
}
