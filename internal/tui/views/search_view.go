package views

import (
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// SearchView provides message search.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	data    []api.SearchResult
}

func NewSearchView(theme *ui.Theme) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.KeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.CursorFg).
		Background(theme.CursorBg))

	sv := &SearchView{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(input, 1, 0, true).
			AddItem(results, 0, 1, false),
		theme:   theme,
		input:   input,
		results: results,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil && sv.input.GetText() != "" {
			sv.onQuery(sv.input.GetText())
		}
	})
	return sv
}

func (sv *SearchView) SetOnQuery(fn func(query string)) { sv.onQuery = fn }

// Reset clears the query and the results.
func (sv *SearchView) Reset(query string) {
	sv.input.SetText(query)
	sv.Update(nil)
}

func (sv *SearchView) Update(results []api.SearchResult) {
	sv.data = results
	sv.results.Clear()

	for col, h := range []string{" CONVERSATION", " FROM", " SNIPPET", " TIME"} {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.HeaderFg).
			SetAttributes(tcell.AttrBold))
	}
	now := time.Now()
	for i, r := range results {
		row := i + 1
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+clean(r.ConversationID)).SetMaxWidth(24).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+clean(r.Sender)).SetMaxWidth(16).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+clean(r.Snippet)).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(r.CreatedAtUnixMs, now)).SetTextColor(sv.theme.FgColor))
	}
	sv.results.SetTitle(" Results ")
	if results != nil && len(results) == 0 {
		sv.results.SetTitle(" No matches ")
	}
}

// Selected returns the conversation of the highlighted result.
func (sv *SearchView) Selected() string {
	row, _ := sv.results.GetSelection()
	if idx := row - 1; idx >= 0 && idx < len(sv.data) {
		return sv.data[idx].ConversationID
	}
	return ""
}

func (sv *SearchView) Input() *tview.InputField { return sv.input }

func (sv *SearchView) Results() *tview.Table { return sv.results }
