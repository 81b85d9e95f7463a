package views

import (
	"fmt"

	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays the key and command reference.
type HelpView struct {
	*tview.TextView
}

func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	k := ui.Tag(theme.KeyColor)
	_, _ = fmt.Fprintf(tv, `
  [::b]Keys[-:-:-]

  %[1]sTab[-]      Cycle focus: list, windows     %[1]s:[-]   Command mode
  %[1]s/[-]        Filter conversations           %[1]s?[-]   This help
  %[1]ss[-]        Search messages                %[1]sq[-]   Quit
  %[1]sEnter[-]    Open the selected conversation %[1]s1-9[-] Open the Nth conversation

  [::b]In a window[-:-:-]

  %[1]sEnter[-]    Send                           %[1]sCtrl-W[-] Close window
  %[1]sCtrl-N[-]   Minimize window                %[1]sEsc[-]    Back to the list

  [::b]Commands[-:-:-]

  %[1]s:open <conv>[-]  %[1]s:close <conv>[-]  %[1]s:min <conv>[-]  %[1]s:focus <conv>[-]
  %[1]s:start <user>[-]           Start a conversation and open it
  %[1]s:delete-conv <conv>[-]     Delete a conversation
  %[1]s:resend <conv> <id>[-]     Retry a failed message
  %[1]s:edit <conv> <id> <text>[-] Edit one of your messages
  %[1]s:rm <conv> <id>[-]         Delete one of your messages
  %[1]s:visible on|off[-]         Toggle online visibility
  %[1]s:search <query>[-]         Search messages
  %[1]s:quit[-]
`, k)
	return &HelpView{TextView: tv}
}
