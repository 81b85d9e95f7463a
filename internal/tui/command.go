package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/tui/model"
)

// Daemon is the part of the daemon API the TUI drives.
type Daemon interface {
	model.Client
	SendMessage(ctx context.Context, conversationID, content string) (*api.MessageResponse, error)
	ResendMessage(ctx context.Context, conversationID, clientID string) (*api.MessageResponse, error)
	EditMessage(ctx context.Context, conversationID, messageID, content string) (*api.MessageResponse, error)
	DeleteMessage(ctx context.Context, conversationID, messageID string) error
	StartConversation(ctx context.Context, targetUserID string) (*api.ConversationResponse, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	Window(ctx context.Context, op, conversationID string) (*api.WindowsResponse, error)
	Typing(ctx context.Context, conversationID string) error
	SetVisibility(ctx context.Context, visible bool) error
	SearchMessages(ctx context.Context, query, conversationID string, limit int) (*api.SearchResponse, error)
	WatchEvents(ctx context.Context, prefix string) (*api.EventStream, error)
}

var (
	errQuit  = errors.New("quit")
	errUsage = errors.New("usage")
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{}
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}
}

// rest joins the arguments from i on.
func (c Command) rest(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

// Outcome is what a command changed. Windows is set by window operations;
// Search opens the search view with the query.
type Outcome struct {
	Flash   string
	Windows *api.WindowsResponse
	Search  string
}

var windowOps = map[string]string{
	"open":  "OpenWindow",
	"close": "CloseWindow",
	"min":   "MinimizeWindow",
	"focus": "FocusWindow",
}

// Execute runs one command against d. current is the conversation of the
// focused window, used when a window command omits its argument.
func Execute(ctx context.Context, d Daemon, cmd Command, current string) (Outcome, error) {
	arg := func(i int) string {
		if i < len(cmd.Args) {
			return cmd.Args[i]
		}
		return ""
	}
	conv := arg(0)
	if conv == "" {
		conv = current
	}

	switch cmd.Name {
	case "q", "quit":
		return Outcome{}, errQuit
	case "open", "close", "min", "focus":
		if conv == "" {
			return Outcome{}, fmt.Errorf("%w: :%s <conversation>", errUsage, cmd.Name)
		}
		ws, err := d.Window(ctx, windowOps[cmd.Name], conv)
		if err != nil {
			return Outcome{}, err
		}
		out := Outcome{Windows: ws}
		if ws.Evicted != "" {
			out.Flash = "closed " + ws.Evicted + " to make room"
		}
		return out, nil
	case "start":
		if len(cmd.Args) != 1 {
			return Outcome{}, fmt.Errorf("%w: :start <user>", errUsage)
		}
		resp, err := d.StartConversation(ctx, cmd.Args[0])
		if err != nil {
			return Outcome{}, err
		}
		ws, err := d.Window(ctx, "FocusWindow", resp.Conversation.ID)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Windows: ws, Flash: "started " + resp.Conversation.ID}, nil
	case "delete-conv":
		if len(cmd.Args) != 1 {
			return Outcome{}, fmt.Errorf("%w: :delete-conv <conversation>", errUsage)
		}
		return Outcome{Flash: "deleted " + cmd.Args[0]}, d.DeleteConversation(ctx, cmd.Args[0])
	case "resend":
		if len(cmd.Args) != 2 {
			return Outcome{}, fmt.Errorf("%w: :resend <conversation> <client-id>", errUsage)
		}
		_, err := d.ResendMessage(ctx, cmd.Args[0], cmd.Args[1])
		return Outcome{Flash: "resending"}, err
	case "edit":
		if len(cmd.Args) < 3 {
			return Outcome{}, fmt.Errorf("%w: :edit <conversation> <message-id> <text>", errUsage)
		}
		_, err := d.EditMessage(ctx, cmd.Args[0], cmd.Args[1], cmd.rest(2))
		return Outcome{Flash: "edited"}, err
	case "rm":
		if len(cmd.Args) != 2 {
			return Outcome{}, fmt.Errorf("%w: :rm <conversation> <message-id>", errUsage)
		}
		return Outcome{Flash: "deleted"}, d.DeleteMessage(ctx, cmd.Args[0], cmd.Args[1])
	case "visible":
		switch arg(0) {
		case "on", "off":
			return Outcome{Flash: "visibility " + arg(0)}, d.SetVisibility(ctx, arg(0) == "on")
		}
		return Outcome{}, fmt.Errorf("%w: :visible on|off", errUsage)
	case "search":
		return Outcome{Search: cmd.rest(0)}, nil
	case "":
		return Outcome{}, nil
	}
	return Outcome{}, fmt.Errorf("unknown command :%s", cmd.Name)
}
