package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode indicates what the prompt input is used for.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
)

// Prompt is the ":" command and "/" filter bar. Up and Down walk the
// command history.
type Prompt struct {
	*tview.InputField
	mode     PromptMode
	history  []string
	pos      int
	onSubmit func(mode PromptMode, text string)
	onChange func(mode PromptMode, text string)
	onCancel func()
}

func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.KeyColor)

	p := &Prompt{InputField: input}

	input.SetChangedFunc(func(text string) {
		if p.mode == PromptFilter && p.onChange != nil {
			p.onChange(p.mode, text)
		}
	})
	input.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if p.mode != PromptCommand || len(p.history) == 0 {
			return ev
		}
		switch ev.Key() {
		case tcell.KeyUp:
			p.pos = max(p.pos-1, 0)
			p.SetText(p.history[p.pos])
			return nil
		case tcell.KeyDown:
			p.pos = min(p.pos+1, len(p.history))
			if p.pos == len(p.history) {
				p.SetText("")
			} else {
				p.SetText(p.history[p.pos])
			}
			return nil
		}
		return ev
	})
	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := p.GetText()
			if p.mode == PromptCommand && text != "" {
				p.history = append(p.history, text)
			}
			if p.onSubmit != nil {
				p.onSubmit(p.mode, text)
			}
			p.SetText("")
			p.SetLabel("")
		case tcell.KeyEscape:
			p.SetText("")
			p.SetLabel("")
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})
	return p
}

func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) { p.onSubmit = fn }

// SetOnChange is called on every edit in filter mode.
func (p *Prompt) SetOnChange(fn func(mode PromptMode, text string)) { p.onChange = fn }

func (p *Prompt) SetOnCancel(fn func()) { p.onCancel = fn }

// Activate prepares the prompt for input in mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.pos = len(p.history)
	p.SetText("")
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
	case PromptFilter:
		p.SetLabel("/")
	}
}

func (p *Prompt) Mode() PromptMode {
	return p.mode
}
