// Package tui is the terminal client of a chatsync daemon: a conversation
// list next to the open chat windows, redrawn from the daemon's event stream.
package tui

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/tui/keys"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/matheus3301/chatsync/internal/tui/views"
	"github.com/rivo/tview"
	"github.com/samber/lo"
)

const (
	pageMain   = "main"
	pageSearch = "search"
	pageHelp   = "help"

	// typingEvery throttles keystroke signals sent to the daemon.
	typingEvery = 500 * time.Millisecond
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	pages    *tview.Pages
	daemon   Daemon
	vm       *model.ViewModel
	theme    *ui.Theme
	registry *keys.Registry
	list     *views.ConversationList
	windows  *views.WindowArea
	prompt   *ui.Prompt
	status   *views.StatusBar
	search   *views.SearchView
	ctx      context.Context
	cancel   context.CancelFunc

	// Owned by the UI goroutine.
	focused    string
	lastTyping map[string]time.Time
	returnTo   tview.Primitive
}

// NewApp creates the TUI application.
func NewApp(d Daemon, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:        tview.NewApplication(),
		pages:      tview.NewPages(),
		daemon:     d,
		vm:         model.NewViewModel(d),
		theme:      theme,
		registry:   keys.NewRegistry(),
		list:       views.NewConversationList(theme),
		windows:    views.NewWindowArea(theme),
		prompt:     ui.NewPrompt(theme),
		status:     views.NewStatusBar(theme, sessionName),
		search:     views.NewSearchView(theme),
		ctx:        ctx,
		cancel:     cancel,
		lastTyping: make(map[string]time.Time),
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.Add(keys.Global, &keys.Action{Key: tcell.KeyTab, Label: "Tab", Description: "focus", Handler: a.cycleFocus})
	a.registry.Add(keys.Global, &keys.Action{Key: tcell.KeyRune, Rune: ':', Label: ":", Description: "command",
		Handler: func() { a.activatePrompt(ui.PromptCommand) }})
	a.registry.Add(keys.Global, &keys.Action{Key: tcell.KeyRune, Rune: '?', Label: "?", Description: "help",
		Handler: func() { a.pages.SwitchToPage(pageHelp) }})
	a.registry.Add(keys.Global, &keys.Action{Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "quit", Handler: a.Stop})

	a.registry.Add(keys.List, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "open",
		Handler: func() { a.openConversation(a.list.Selected()) }})
	a.registry.Add(keys.List, &keys.Action{Key: tcell.KeyRune, Rune: '/', Label: "/", Description: "filter",
		Handler: func() { a.activatePrompt(ui.PromptFilter) }})
	a.registry.Add(keys.List, &keys.Action{Key: tcell.KeyRune, Rune: 's', Label: "s", Description: "search", Handler: func() { a.showSearch("") }})
	for n := 1; n <= 9; n++ {
		action := &keys.Action{Key: tcell.KeyRune, Rune: rune('0' + n), Handler: func() { a.openConversation(a.list.ByIndex(n)) }}
		if n == 1 {
			action.Label, action.Description = "1-9", "open nth"
		}
		a.registry.Add(keys.List, action)
	}

	a.registry.Add(keys.Window, &keys.Action{Key: tcell.KeyCtrlW, Label: "^W", Description: "close",
		Handler: func() { a.runCommand(Command{Name: "close"}) }})
	a.registry.Add(keys.Window, &keys.Action{Key: tcell.KeyCtrlN, Label: "^N", Description: "minimize",
		Handler: func() { a.runCommand(Command{Name: "min"}) }})
	a.registry.Add(keys.Window, &keys.Action{Key: tcell.KeyEscape, Label: "Esc", Description: "list", Handler: a.focusList})

	a.registry.Add(keys.Search, &keys.Action{Key: tcell.KeyEscape, Label: "Esc", Description: "back", Handler: a.showMain})
}

func (a *App) setupCallbacks() {
	a.windows.SetOnSend(func(conv, text string) {
		go func() {
			if _, err := a.daemon.SendMessage(a.ctx, conv, text); err != nil {
				a.vm.Flash.Err(err)
				a.app.QueueUpdateDraw(a.renderStatus)
			}
		}()
	})
	a.windows.SetOnKeystroke(func(conv string) {
		now := time.Now()
		if now.Sub(a.lastTyping[conv]) < typingEvery {
			return
		}
		a.lastTyping[conv] = now
		go func() { _ = a.daemon.Typing(a.ctx, conv) }()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.restoreFocus()
		if mode == ui.PromptCommand {
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnChange(func(_ ui.PromptMode, text string) { a.list.SetFilter(text) })
	a.prompt.SetOnCancel(func() {
		if a.prompt.Mode() == ui.PromptFilter {
			a.list.SetFilter("")
		}
		a.restoreFocus()
	})

	a.search.SetOnQuery(a.runSearch)
	a.search.Results().SetSelectedFunc(func(_, _ int) {
		if conv := a.search.Selected(); conv != "" {
			a.showMain()
			a.openConversation(conv)
		}
	})
}

func (a *App) runSearch(query string) {
	go func() {
		resp, err := a.daemon.SearchMessages(a.ctx, query, "", 50)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.vm.Flash.Err(err)
				a.renderStatus()
				return
			}
			a.search.Update(resp.Results)
			a.app.SetFocus(a.search.Results())
		})
	}()
}

func (a *App) setupLayout() {
	main := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.list, 0, 2, true).
		AddItem(a.windows, 0, 5, false)

	a.pages.AddPage(pageMain, main, true, true)
	a.pages.AddPage(pageSearch, a.search, true, false)
	a.pages.AddPage(pageHelp, views.NewHelpView(a.theme), true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 1, 0, false).
		AddItem(a.status, 1, 0, false)
	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		page, _ := a.pages.GetFrontPage()
		if page == pageHelp {
			a.showMain()
			return nil
		}
		focus := a.app.GetFocus()
		if focus == a.prompt.InputField {
			return ev
		}
		scope := a.scope(page, focus)
		if _, typing := focus.(*tview.InputField); typing {
			// Text fields keep printable keys; only non-rune bindings apply.
			if ev.Key() == tcell.KeyRune {
				return ev
			}
			if a.registry.HandleEvent(scope, ev) {
				return nil
			}
			return ev
		}
		if a.registry.HandleEvent(scope, ev) {
			return nil
		}
		return ev
	})
}

func (a *App) scope(page string, focus tview.Primitive) string {
	switch {
	case page == pageSearch:
		return keys.Search
	case focus == a.list || focus == a.list.Table:
		return keys.List
	case a.focused != "":
		return keys.Window
	}
	return keys.Global
}

func (a *App) activatePrompt(mode ui.PromptMode) {
	a.returnTo = a.app.GetFocus()
	a.prompt.Activate(mode)
	a.app.SetFocus(a.prompt)
}

func (a *App) restoreFocus() {
	if a.returnTo != nil {
		a.app.SetFocus(a.returnTo)
		return
	}
	a.focusList()
}

func (a *App) focusList() {
	a.focused = ""
	a.app.SetFocus(a.list)
	a.renderStatus()
}

// focusWindow moves keyboard focus to a window's composer and makes it the
// active window on the daemon, which acknowledges its unread messages.
func (a *App) focusWindow(conv string) {
	pane, ok := a.windows.Pane(conv)
	if !ok {
		return
	}
	a.focused = conv
	a.app.SetFocus(pane.Composer())
	a.renderStatus()
	if ws := a.vm.Windows(); ws.Active != conv {
		a.runCommand(Command{Name: "focus", Args: []string{conv}})
	}
}

// cycleFocus walks list, then each visible window, then back to the list.
func (a *App) cycleFocus() {
	if next := a.windows.Next(a.focused); next != "" {
		a.focusWindow(next)
		return
	}
	a.focusList()
}

func (a *App) showMain() {
	a.pages.SwitchToPage(pageMain)
	a.focusList()
}

func (a *App) showSearch(query string) {
	a.search.Reset(query)
	a.pages.SwitchToPage(pageSearch)
	a.app.SetFocus(a.search.Input())
	a.renderStatus()
	if query != "" {
		a.runSearch(query)
	}
}

// openConversation opens or focuses the window of conv.
func (a *App) openConversation(conv string) {
	if conv == "" {
		return
	}
	if _, ok := a.windows.Pane(conv); ok {
		a.focusWindow(conv)
		return
	}
	a.runCommandThen(Command{Name: "open", Args: []string{conv}}, func() { a.focusWindow(conv) })
}

func (a *App) runCommand(cmd Command) {
	a.runCommandThen(cmd, nil)
}

// runCommandThen executes cmd off the UI goroutine, applies its outcome and
// then calls after on the UI goroutine.
func (a *App) runCommandThen(cmd Command, after func()) {
	if cmd.Name == "q" || cmd.Name == "quit" {
		a.Stop()
		return
	}
	current := a.focused
	go func() {
		out, err := Execute(a.ctx, a.daemon, cmd, current)
		if err == nil && out.Windows != nil {
			a.vm.SetWindows(out.Windows)
			for _, w := range out.Windows.Windows {
				if len(a.vm.Messages(w.ConversationID)) == 0 {
					_ = a.vm.LoadMessages(a.ctx, w.ConversationID)
				}
			}
		}
		a.app.QueueUpdateDraw(func() {
			switch {
			case err != nil:
				a.vm.Flash.Err(err)
			case out.Flash != "":
				a.vm.Flash.Info(out.Flash)
			}
			if err == nil && cmd.Name == "search" {
				a.showSearch(out.Search)
				return
			}
			a.render()
			if err == nil && after != nil {
				after()
			}
			if a.focused != "" {
				if _, ok := a.windows.Pane(a.focused); !ok {
					a.focusList()
				}
			}
		})
	}()
}

func (a *App) render() {
	convs, total := a.vm.Conversations()
	self := ""
	if st := a.vm.Status(); st != nil {
		self = st.UserID
	}
	a.list.Update(convs, total, self)

	a.windows.Update(a.vm.Windows(), views.Content{
		Self:     self,
		Messages: a.vm.Messages,
		Title: func(id string) string {
			c, ok := a.vm.Conversation(id)
			if !ok {
				return id
			}
			if others := lo.Without(c.Participants, self); len(others) > 0 {
				return strings.Join(others, ", ")
			}
			return id
		},
		Typers: func(id string) []string {
			c, _ := a.vm.Conversation(id)
			return c.Typers
		},
	})
	a.renderStatus()
}

func (a *App) renderStatus() {
	page, _ := a.pages.GetFrontPage()
	a.status.Update(a.vm.Status(), a.vm.Flash.Get(), a.registry.Hints(a.scope(page, a.app.GetFocus())))
}

// watch applies daemon events until the app stops, resubscribing when the
// stream breaks.
func (a *App) watch() {
	for a.ctx.Err() == nil {
		stream, err := a.daemon.WatchEvents(a.ctx, "")
		if err == nil {
			err = a.consume(stream)
		}
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.vm.Flash.Warn("event stream: " + err.Error())
		}
		select {
		case <-time.After(time.Second):
		case <-a.ctx.Done():
			return
		}
		// Resync after a gap in the stream.
		if err := a.vm.LoadAll(a.ctx); err == nil {
			a.app.QueueUpdateDraw(a.render)
		}
	}
}

func (a *App) consume(stream *api.EventStream) error {
	for {
		evt, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		dirty := a.vm.Classify(evt)
		if !dirty.Any() {
			continue
		}
		if err := a.vm.Refresh(a.ctx, dirty); err != nil {
			a.vm.Flash.Err(err)
		}
		a.app.QueueUpdateDraw(a.render)
	}
}

func (a *App) tick() {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			a.app.QueueUpdateDraw(a.renderStatus)
		case <-a.ctx.Done():
			return
		}
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		if err := a.vm.LoadAll(a.ctx); err != nil {
			a.vm.Flash.Err(err)
		}
		a.app.QueueUpdateDraw(func() {
			a.render()
			a.focusList()
		})
		go a.tick()
		a.watch()
	}()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
