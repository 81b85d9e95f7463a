package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
	"github.com/samber/lo"
)

// ConversationList is the table of conversations with unread badges.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	self    string
	convs   []api.Conversation
	visible []api.Conversation
	filter  string
}

func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.CursorFg).
		Background(theme.CursorBg))
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{Table: table, theme: theme}
}

// Update redraws the list. self is hidden from participant names.
func (cl *ConversationList) Update(convs []api.Conversation, unreadTotal int, self string) {
	cl.convs = convs
	cl.self = self
	cl.render(unreadTotal)
}

func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	_, total := cl.totals()
	cl.render(total)
}

func (cl *ConversationList) totals() (int, int) {
	return len(cl.convs), lo.SumBy(cl.convs, func(c api.Conversation) int { return c.Unread })
}

func (cl *ConversationList) title(c api.Conversation) string {
	others := lo.Without(c.Participants, cl.self)
	if len(others) == 0 {
		return c.ID
	}
	return strings.Join(others, ", ")
}

func (cl *ConversationList) render(unreadTotal int) {
	selected := cl.Selected()
	cl.Clear()

	for col, h := range []string{" ", " WITH", " LAST MESSAGE", " TIME"} {
		cl.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(cl.theme.HeaderFg).
			SetAttributes(tcell.AttrBold))
	}

	cl.visible = lo.Filter(cl.convs, func(c api.Conversation, _ int) bool {
		if cl.filter == "" {
			return true
		}
		last := ""
		if c.LastMessage != nil {
			last = c.LastMessage.Content
		}
		return containsFold(cl.title(c), cl.filter) || containsFold(last, cl.filter)
	})

	now := time.Now()
	for i, c := range cl.visible {
		row := i + 1
		mark := " "
		if c.Open {
			mark = "▪"
		}
		name := clean(cl.title(c))
		color := cl.theme.FgColor
		if c.Unread > 0 {
			name = fmt.Sprintf("(%d) %s", c.Unread, name)
			color = cl.theme.UnreadColor
		}
		preview := ""
		if len(c.Typers) > 0 {
			preview = strings.Join(c.Typers, ", ") + " typing…"
		} else if c.LastMessage != nil {
			preview = clean(c.LastMessage.Content)
		}
		cl.SetCell(row, 0, tview.NewTableCell(mark).SetTextColor(cl.theme.KeyColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+name).SetExpansion(1).SetMaxWidth(28).SetTextColor(color))
		cl.SetCell(row, 2, tview.NewTableCell(" "+preview).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 3, tview.NewTableCell(formatTimestamp(c.LastActivityUnixMs, now)).
			SetAlign(tview.AlignRight).SetTextColor(cl.theme.FgColor))
		if c.ID == selected {
			cl.Select(row, 0)
		}
	}

	title := fmt.Sprintf(" Conversations (%d) ", len(cl.convs))
	if cl.filter != "" {
		title = fmt.Sprintf(" Conversations (%d/%d) /%s ", len(cl.visible), len(cl.convs), cl.filter)
	}
	if unreadTotal > 0 {
		title += fmt.Sprintf("%s%d unread[-] ", ui.Tag(cl.theme.UnreadColor), unreadTotal)
	}
	cl.SetTitle(title)
}

// Selected returns the id of the highlighted conversation.
func (cl *ConversationList) Selected() string {
	row, _ := cl.GetSelection()
	return cl.ByIndex(row)
}

// ByIndex returns the id of the nth visible conversation (1-based).
func (cl *ConversationList) ByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1].ID
}
