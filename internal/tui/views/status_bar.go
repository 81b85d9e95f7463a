package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the session, connection state, counters, key hints
// and the current flash message.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	session string
}

func NewStatusBar(theme *ui.Theme, session string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv, theme: theme, session: session}
}

func (sb *StatusBar) Update(st *api.GetStatusResponse, flash *model.FlashMessage, hints []string) {
	sb.Clear()

	state, counters := "?", ""
	if st != nil {
		state = stateTag(st.State) + st.State + "[-]"
		counters = fmt.Sprintf("%d unread | %d windows", st.UnreadTotal, st.OpenWindows)
		if st.Outbox > 0 {
			counters += fmt.Sprintf(" | %d queued", st.Outbox)
		}
	}
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s | %s", sb.session, state, counters, time.Now().Format("15:04"))

	if flash != nil {
		color := sb.theme.FlashInfoColor
		switch flash.Level {
		case model.FlashWarn:
			color = sb.theme.FlashWarnColor
		case model.FlashErr:
			color = sb.theme.FlashErrColor
		}
		line += " | " + ui.Tag(color) + tview.Escape(flash.Text) + "[-]"
	} else if len(hints) > 0 {
		line += " | [::d]" + tview.Escape(strings.Join(hints, "  ")) + "[-:-:-]"
	}
	_, _ = fmt.Fprint(sb, line)
}

func stateTag(state string) string {
	switch state {
	case "READY":
		return "[green]"
	case "UNAUTHENTICATED", "CLOSED":
		return "[red]"
	case "IDLE":
		return "[white]"
	}
	return "[yellow]"
}
