package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
	"github.com/samber/lo"
)

// WindowArea lays out the open windows side by side and lists minimized
// ones on a tab line. Panes are kept across redraws so composer text
// survives.
type WindowArea struct {
	*tview.Flex
	theme  *ui.Theme
	panes  map[string]*WindowPane
	row    *tview.Flex
	tabs   *tview.TextView
	order  []string
	onSend func(conversationID, text string)
	onKey  func(conversationID string)
	layout string
}

func NewWindowArea(theme *ui.Theme) *WindowArea {
	tabs := tview.NewTextView().SetDynamicColors(true)
	tabs.SetBackgroundColor(theme.BgColor)
	row := tview.NewFlex().SetDirection(tview.FlexColumn)
	row.SetBackgroundColor(theme.BgColor)

	return &WindowArea{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(row, 0, 1, false).
			AddItem(tabs, 1, 0, false),
		theme: theme,
		panes: make(map[string]*WindowPane),
		row:   row,
		tabs:  tabs,
	}
}

func (wa *WindowArea) SetOnSend(fn func(conversationID, text string)) { wa.onSend = fn }

func (wa *WindowArea) SetOnKeystroke(fn func(conversationID string)) { wa.onKey = fn }

// Content supplies what each pane renders.
type Content struct {
	Title    func(conversationID string) string
	Messages func(conversationID string) []api.Message
	Typers   func(conversationID string) []string
	Self     string
}

// Update rebuilds the layout from ws and redraws every visible pane.
func (wa *WindowArea) Update(ws *api.WindowsResponse, c Content) {
	var visible, minimized []string
	for _, w := range ws.Windows {
		if w.Minimized {
			minimized = append(minimized, w.ConversationID)
		} else {
			visible = append(visible, w.ConversationID)
		}
	}

	for id := range wa.panes {
		if !lo.Contains(visible, id) {
			delete(wa.panes, id)
		}
	}
	layout := strings.Join(visible, "\x00")
	if layout != wa.layout {
		wa.row.Clear()
		for _, id := range visible {
			p, ok := wa.panes[id]
			if !ok {
				p = NewWindowPane(wa.theme, id)
				p.SetOnSend(wa.onSend)
				p.SetOnKeystroke(wa.onKey)
				wa.panes[id] = p
			}
			wa.row.AddItem(p, 0, 1, false)
		}
		wa.layout = layout
	}
	wa.order = visible

	for _, id := range visible {
		wa.panes[id].Update(c.Title(id), c.Messages(id), c.Self, c.Typers(id), id == ws.Active)
	}

	wa.tabs.Clear()
	if len(minimized) > 0 {
		names := lo.Map(minimized, func(id string, _ int) string { return clean(c.Title(id)) })
		_, _ = fmt.Fprintf(wa.tabs, " %sminimized:[-] %s", ui.Tag(wa.theme.KeyColor), strings.Join(names, " | "))
	}
	if len(ws.Windows) == 0 {
		_, _ = fmt.Fprint(wa.tabs, " no open windows (Enter on a conversation opens one)")
	}
}

// Pane returns the pane of a visible window.
func (wa *WindowArea) Pane(conversationID string) (*WindowPane, bool) {
	p, ok := wa.panes[conversationID]
	return p, ok
}

// Next returns the visible window after conversationID, or the first one
// when conversationID is not visible. It returns "" after the last window.
func (wa *WindowArea) Next(conversationID string) string {
	if conversationID == "" || !lo.Contains(wa.order, conversationID) {
		if len(wa.order) == 0 {
			return ""
		}
		return wa.order[0]
	}
	i := lo.IndexOf(wa.order, conversationID)
	if i+1 < len(wa.order) {
		return wa.order[i+1]
	}
	return ""
}
