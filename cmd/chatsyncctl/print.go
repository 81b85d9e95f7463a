package main

import (
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
)

// printer renders responses as text, or as indented JSON with --json.
type printer struct {
	json bool
}

func (p printer) status(resp *api.GetStatusResponse) {
	if p.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("Session:       %s\n", resp.Session)
	fmt.Printf("State:         %s (since %s)\n", resp.State, clock(resp.StateSinceUnixMs))
	fmt.Printf("Uptime:        %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
	fmt.Printf("User:          %s\n", orDash(resp.UserID))
	fmt.Printf("Conversations: %d (%d unread)\n", resp.Conversations, resp.UnreadTotal)
	fmt.Printf("Open windows:  %d\n", resp.OpenWindows)
	fmt.Printf("Outbox:        %d\n", resp.Outbox)
}

func (p printer) conversations(resp *api.ListConversationsResponse) {
	if p.json {
		outputJSON(resp)
		return
	}
	if len(resp.Conversations) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, c := range resp.Conversations {
		flags := ""
		if c.Open {
			flags += "*"
		}
		if len(c.Typers) > 0 {
			flags += " typing: " + strings.Join(c.Typers, ",")
		}
		preview := ""
		if c.LastMessage != nil {
			preview = c.LastMessage.Sender + ": " + truncate(c.LastMessage.Content, 40)
		}
		fmt.Printf("%-24s %-28s %3d  %s%s\n", c.ID, strings.Join(c.Participants, ","), c.Unread, preview, flags)
	}
	fmt.Printf("total unread: %d\n", resp.UnreadTotal)
}

func (p printer) messages(msgs []api.Message) {
	if p.json {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		id := m.ID
		if m.ClientID != "" && m.ClientID != m.ID {
			id += " (" + m.ClientID + ")"
		}
		fmt.Printf("%s  %-10s %-8s %s  [%s]\n", clock(m.CreatedAtUnixMs), m.Sender, m.Status, m.Content, id)
	}
}

func (p printer) windows(resp *api.WindowsResponse) {
	if p.json {
		outputJSON(resp)
		return
	}
	if resp.Evicted != "" {
		fmt.Printf("evicted %s\n", resp.Evicted)
	}
	fmt.Printf("%d/%d windows open\n", len(resp.Windows), resp.Capacity)
	for _, w := range resp.Windows {
		mark := " "
		if w.Active {
			mark = ">"
		}
		state := "open"
		if w.Minimized {
			state = "minimized"
		}
		fmt.Printf("%s %-24s %s\n", mark, w.ConversationID, state)
	}
}

func (p printer) presence(resp *api.PresenceResponse) {
	if p.json {
		outputJSON(resp)
		return
	}
	switch {
	case !resp.Known:
		fmt.Printf("%s: unknown\n", resp.UserID)
	case resp.Online:
		fmt.Printf("%s: online\n", resp.UserID)
	default:
		fmt.Printf("%s: offline, last seen %s\n", resp.UserID, clock(resp.LastSeenAtUnixMs))
	}
}

func (p printer) search(resp *api.SearchResponse) {
	if p.json {
		outputJSON(resp)
		return
	}
	if len(resp.Results) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, r := range resp.Results {
		fmt.Printf("%s  %-24s %-10s %s\n", clock(r.CreatedAtUnixMs), r.ConversationID, r.Sender, r.Snippet)
	}
}

func clock(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// processAlive reports whether pid exists (signal 0 probe).
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
