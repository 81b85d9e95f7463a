// Package ui holds widgets shared by the views.
package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds the TUI colors.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TitleColor       tcell.Color
	HeaderFg         tcell.Color
	CursorFg         tcell.Color
	CursorBg         tcell.Color
	KeyColor         tcell.Color
	UnreadColor      tcell.Color
	PendingColor     tcell.Color
	FailedColor      tcell.Color
	SeenColor        tcell.Color
	FlashInfoColor   tcell.Color
	FlashWarnColor   tcell.Color
	FlashErrColor    tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorCadetBlue,
		BorderColor:      tcell.ColorDodgerBlue,
		BorderFocusColor: tcell.ColorLightSkyBlue,
		TitleColor:       tcell.ColorFuchsia,
		HeaderFg:         tcell.ColorWhite,
		CursorFg:         tcell.ColorBlack,
		CursorBg:         tcell.ColorAqua,
		KeyColor:         tcell.ColorDodgerBlue,
		UnreadColor:      tcell.ColorOrange,
		PendingColor:     tcell.ColorGray,
		FailedColor:      tcell.ColorOrangeRed,
		SeenColor:        tcell.ColorLightGreen,
		FlashInfoColor:   tcell.ColorNavajoWhite,
		FlashWarnColor:   tcell.ColorOrange,
		FlashErrColor:    tcell.ColorOrangeRed,
	}
}

// Tag returns the tview color tag of c, e.g. "[#ff8c00]".
func Tag(c tcell.Color) string {
	return fmt.Sprintf("[#%06x]", c.Hex())
}
