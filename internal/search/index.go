package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

const snippetRadius = 32

// Result is one search hit.
type Result struct {
	ConversationID string
	MessageID      string
	Sender         string
	Body           string
	CreatedAt      time.Time
	Snippet        string
}

// Index mirrors message bodies into the database and answers substring
// queries over them.
type Index struct {
	db     *DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewIndex opens and migrates a fresh in-memory database.
func NewIndex(b *bus.Bus, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := Open()
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Index{db: db, bus: b, logger: logger}, nil
}

// Start subscribes to message and conversation events on the bus. The
// subscriptions are lossless: a history load publishing faster than the
// database keeps up slows the publisher rather than leaving rows unindexed.
func (ix *Index) Start(ctx context.Context) {
	ctx, ix.cancel = context.WithCancel(ctx)
	msgs, unsubMsgs := ix.bus.SubscribeLossless("message.", 4096)
	convs, unsubConvs := ix.bus.SubscribeLossless("conversation.", 64)
	ix.done = make(chan struct{})

	go func() {
		defer close(ix.done)
		defer unsubMsgs()
		defer unsubConvs()
		for {
			select {
			case evt, ok := <-msgs:
				if !ok {
					return
				}
				ix.handleEvent(evt)
			case evt, ok := <-convs:
				if !ok {
					return
				}
				ix.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops consuming events and closes the database.
func (ix *Index) Stop() {
	if ix.cancel != nil {
		ix.cancel()
		<-ix.done
	}
	_ = ix.db.Close()
}

func (ix *Index) handleEvent(evt bus.Event) {
	var err error
	switch p := evt.Payload.(type) {
	case store.MessageChange:
		if p.PreviousID != "" {
			err = ix.Remove(p.ConversationID, p.PreviousID)
		}
		if err == nil {
			err = ix.Put(p.Message)
		}
	case string:
		if evt.Kind == bus.KindConversationRemoved {
			err = ix.RemoveConversation(p)
		}
	}
	if err != nil {
		ix.logger.Error("search index update failed", zap.String("kind", evt.Kind), zap.Error(err))
	}
}

// Put indexes a message, replacing any previous body. Deleted messages are
// removed from the index.
func (ix *Index) Put(m store.Message) error {
	if m.Deleted || m.Content == "" {
		return ix.Remove(m.ConversationID, m.ID)
	}
	_, err := ix.db.Exec(`
		INSERT INTO messages (conversation_id, msg_id, sender, body, body_lower, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			body = excluded.body,
			body_lower = excluded.body_lower`,
		m.ConversationID, m.ID, m.Sender, m.Content, strings.ToLower(m.Content), m.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("index message: %w", err)
	}
	return nil
}

// Remove drops one message.
func (ix *Index) Remove(conversationID, msgID string) error {
	_, err := ix.db.Exec(`DELETE FROM messages WHERE conversation_id = ? AND msg_id = ?`, conversationID, msgID)
	return err
}

// RemoveConversation drops every message of a conversation.
func (ix *Index) RemoveConversation(conversationID string) error {
	_, err := ix.db.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	return err
}

// Search returns messages whose body contains query, newest first. A
// non-empty conversationID restricts the search to one conversation.
func (ix *Index) Search(query, conversationID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}

	q := `
		SELECT conversation_id, msg_id, sender, body, created_at
		FROM messages
		WHERE instr(body_lower, ?) > 0`
	args := []any{needle}
	if conversationID != "" {
		q += " AND conversation_id = ?"
		args = append(args, conversationID)
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := ix.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []Result
	for rows.Next() {
		var r Result
		var createdAt int64
		if err := rows.Scan(&r.ConversationID, &r.MessageID, &r.Sender, &r.Body, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(createdAt)
		r.Snippet = snippet(r.Body, needle)
		results = append(results, r)
	}
	return results, rows.Err()
}

// Count returns the number of indexed messages.
func (ix *Index) Count() (int, error) {
	var n int
	err := ix.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// snippet marks the first match of needle in body with << >> and trims the
// surrounding text to snippetRadius runes on each side.
func snippet(body, needle string) string {
	runes := []rune(body)
	lower := []rune(strings.ToLower(body))
	n := []rune(needle)
	at := -1
	for i := 0; i+len(n) <= len(lower); i++ {
		if string(lower[i:i+len(n)]) == needle {
			at = i
			break
		}
	}
	if at < 0 {
		return body
	}
	start := max(at-snippetRadius, 0)
	end := min(at+len(n)+snippetRadius, len(runes))

	var sb strings.Builder
	if start > 0 {
		sb.WriteString("...")
	}
	sb.WriteString(string(runes[start:at]))
	sb.WriteString("<<")
	sb.WriteString(string(runes[at : at+len(n)]))
	sb.WriteString(">>")
	sb.WriteString(string(runes[at+len(n) : end]))
	if end < len(runes) {
		sb.WriteString("...")
	}
	return sb.String()
}
