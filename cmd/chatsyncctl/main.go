package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/samber/lo"
)

func main() {
	_ = godotenv.Load()

	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	convFlag := flag.String("conv", "", "restrict search to one conversation")
	limitFlag := flag.Int("limit", 20, "maximum search results")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "sessions" {
		cmdSessions(*jsonFlag)
		return
	}

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fail(err)
	}

	c, err := api.Dial(session.SocketPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		prefix := ""
		if len(args) > 1 {
			prefix = args[1]
		}
		cmdWatch(c, prefix, *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := printer{json: *jsonFlag}
	switch args[0] {
	case "status":
		resp, err := c.GetStatus(ctx)
		check(err)
		out.status(resp)
	case "connect":
		resp, err := c.Connect(ctx)
		check(err)
		out.status(resp)
	case "disconnect":
		resp, err := c.Disconnect(ctx)
		check(err)
		out.status(resp)
	case "conversations":
		resp, err := c.ListConversations(ctx)
		check(err)
		out.conversations(resp)
	case "messages":
		need(args, 2, "messages <conversation> [filter]")
		filter := ""
		if len(args) > 2 {
			filter = strings.Join(args[2:], " ")
		}
		resp, err := c.ListMessages(ctx, args[1], filter)
		check(err)
		out.messages(resp.Messages)
	case "send":
		need(args, 3, "send <conversation> <text>")
		resp, err := c.SendMessage(ctx, args[1], strings.Join(args[2:], " "))
		check(err)
		out.messages([]api.Message{resp.Message})
	case "resend":
		need(args, 3, "resend <conversation> <client-id>")
		resp, err := c.ResendMessage(ctx, args[1], args[2])
		check(err)
		out.messages([]api.Message{resp.Message})
	case "edit":
		need(args, 4, "edit <conversation> <message-id> <text>")
		resp, err := c.EditMessage(ctx, args[1], args[2], strings.Join(args[3:], " "))
		check(err)
		out.messages([]api.Message{resp.Message})
	case "delete":
		need(args, 3, "delete <conversation> <message-id>")
		check(c.DeleteMessage(ctx, args[1], args[2]))
	case "start":
		need(args, 2, "start <user-id>")
		resp, err := c.StartConversation(ctx, args[1])
		check(err)
		out.conversations(&api.ListConversationsResponse{Conversations: []api.Conversation{resp.Conversation}})
	case "delete-conversation":
		need(args, 2, "delete-conversation <conversation>")
		check(c.DeleteConversation(ctx, args[1]))
	case "open", "close", "minimize", "focus":
		need(args, 2, args[0]+" <conversation>")
		op := strings.ToUpper(args[0][:1]) + args[0][1:] + "Window"
		resp, err := c.Window(ctx, op, args[1])
		check(err)
		out.windows(resp)
	case "windows":
		resp, err := c.ListWindows(ctx)
		check(err)
		out.windows(resp)
	case "typing":
		need(args, 2, "typing <conversation>")
		check(c.Typing(ctx, args[1]))
	case "visibility":
		need(args, 2, "visibility <on|off>")
		visible, err := parseOnOff(args[1])
		check(err)
		check(c.SetVisibility(ctx, visible))
	case "presence":
		need(args, 2, "presence <user-id>")
		resp, err := c.GetPresence(ctx, args[1])
		check(err)
		out.presence(resp)
	case "search":
		need(args, 2, "search <query>")
		resp, err := c.SearchMessages(ctx, strings.Join(args[1:], " "), *convFlag, *limitFlag)
		check(err)
		out.search(resp)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatsyncctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                              Show session status")
	fmt.Fprintln(os.Stderr, "  connect                             Open the push channel, re-reading the token")
	fmt.Fprintln(os.Stderr, "  disconnect                          Close the push channel")
	fmt.Fprintln(os.Stderr, "  sessions                            List local sessions")
	fmt.Fprintln(os.Stderr, "  conversations                       List conversations with unread counts")
	fmt.Fprintln(os.Stderr, "  messages <conv> [filter]            Show a conversation's messages")
	fmt.Fprintln(os.Stderr, "  send <conv> <text>                  Send a message")
	fmt.Fprintln(os.Stderr, "  resend <conv> <client-id>           Retry a failed message")
	fmt.Fprintln(os.Stderr, "  edit <conv> <msg-id> <text>         Edit one of your messages")
	fmt.Fprintln(os.Stderr, "  delete <conv> <msg-id>              Delete one of your messages")
	fmt.Fprintln(os.Stderr, "  start <user-id>                     Start a conversation")
	fmt.Fprintln(os.Stderr, "  delete-conversation <conv>          Delete a conversation")
	fmt.Fprintln(os.Stderr, "  open|close|minimize|focus <conv>    Window operations")
	fmt.Fprintln(os.Stderr, "  windows                             List open windows")
	fmt.Fprintln(os.Stderr, "  typing <conv>                       Signal a keystroke")
	fmt.Fprintln(os.Stderr, "  visibility <on|off>                 Toggle online visibility")
	fmt.Fprintln(os.Stderr, "  presence <user-id>                  Show a user's presence")
	fmt.Fprintln(os.Stderr, "  search [--conv <conv>] <query>      Search messages")
	fmt.Fprintln(os.Stderr, "  watch [prefix]                      Stream events (e.g. message.)")
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: chatsyncctl %s\n", usage)
		os.Exit(1)
	}
}

func check(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func cmdSessions(jsonOut bool) {
	type entry struct {
		Name    string `json:"name"`
		Running bool   `json:"running"`
		PID     int    `json:"pid,omitempty"`
	}
	dirs, err := os.ReadDir(filepath.Join(session.BaseDir(), "sessions"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fail(err)
	}
	entries := lo.FilterMap(dirs, func(d os.DirEntry, _ int) (entry, bool) {
		if !d.IsDir() {
			return entry{}, false
		}
		e := entry{Name: d.Name()}
		if h, ok := lock.Read(session.Dir(d.Name())); ok && processAlive(h.PID) {
			e.Running, e.PID = true, h.PID
		}
		return e, true
	})
	if jsonOut {
		outputJSON(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, e := range entries {
		state := "stopped"
		if e.Running {
			state = fmt.Sprintf("running (pid %d)", e.PID)
		}
		fmt.Printf("%-20s %s\n", e.Name, state)
	}
}

func cmdWatch(c *api.Client, prefix string, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stream, err := c.WatchEvents(ctx, prefix)
	check(err)
	for {
		evt, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			fail(err)
		}
		if jsonOut {
			data, _ := json.Marshal(evt)
			fmt.Println(string(data))
			continue
		}
		ts := time.UnixMilli(evt.OccurredAtUnixMs).Format("15:04:05.000")
		fmt.Printf("%s %-24s %s\n", ts, evt.Kind, evt.Payload)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
