package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// WindowPane shows one conversation window: its messages and a composer.
type WindowPane struct {
	*tview.Flex
	theme          *ui.Theme
	conversationID string
	messages       *tview.TextView
	composer       *tview.InputField
	onSend         func(conversationID, text string)
	onKeystroke    func(conversationID string)
}

func NewWindowPane(theme *ui.Theme, conversationID string) *WindowPane {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.KeyColor)

	wp := &WindowPane{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(messages, 0, 1, false).
			AddItem(composer, 1, 0, true),
		theme:          theme,
		conversationID: conversationID,
		messages:       messages,
		composer:       composer,
	}

	composer.SetChangedFunc(func(text string) {
		if text != "" && wp.onKeystroke != nil {
			wp.onKeystroke(wp.conversationID)
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || wp.onSend == nil {
			return
		}
		if text := strings.TrimSpace(composer.GetText()); text != "" {
			wp.onSend(wp.conversationID, text)
			composer.SetText("")
		}
	})
	return wp
}

func (wp *WindowPane) ConversationID() string { return wp.conversationID }

func (wp *WindowPane) Composer() *tview.InputField { return wp.composer }

func (wp *WindowPane) SetOnSend(fn func(conversationID, text string)) { wp.onSend = fn }

// SetOnKeystroke is called on every edit of the composer.
func (wp *WindowPane) SetOnKeystroke(fn func(conversationID string)) { wp.onKeystroke = fn }

// Update redraws the pane. title names the other participants; typers are
// shown under the last message.
func (wp *WindowPane) Update(title string, msgs []api.Message, self string, typers []string, active bool) {
	border := wp.theme.BorderColor
	if active {
		border = wp.theme.BorderFocusColor
	}
	wp.messages.SetBorderColor(border)
	wp.messages.SetTitle(fmt.Sprintf(" %s ", clean(title)))

	wp.messages.Clear()
	now := time.Now()
	for _, m := range msgs {
		sender := m.Sender
		if sender == self {
			sender = "You"
		}
		content := clean(m.Content)
		if m.Status == "deleted" {
			content = "[::i]message deleted[-:-:-]"
		}
		_, _ = fmt.Fprintf(wp.messages, "[::b]%s[-:-:-] [::d]%s[-:-:-] %s\n%s\n",
			clean(sender), formatTimestamp(m.CreatedAtUnixMs, now), wp.statusTag(m, self), content)
	}
	if len(typers) > 0 {
		_, _ = fmt.Fprintf(wp.messages, "[::i]%s typing…[-:-:-]\n", clean(strings.Join(typers, ", ")))
	}
	wp.messages.ScrollToEnd()
}

// statusTag renders delivery state for own messages and edit marks for all.
func (wp *WindowPane) statusTag(m api.Message, self string) string {
	var tag string
	if m.Sender == self {
		switch m.Status {
		case "pending":
			tag = ui.Tag(wp.theme.PendingColor) + "…[-]"
		case "failed":
			tag = ui.Tag(wp.theme.FailedColor) + "failed (:resend " + tview.Escape(m.ClientID) + ")[-]"
		case "seen":
			tag = ui.Tag(wp.theme.SeenColor) + "✓✓[-]"
		case "sent", "delivered":
			tag = "✓"
		}
	}
	if m.EditedAtUnixMs != 0 {
		tag += " [::d](edited)[-:-:-]"
	}
	return tag
}
