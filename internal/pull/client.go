package pull

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/protocol"
)

// Client is the REST implementation of Puller.
type Client struct {
	baseURL     string
	http        *http.Client
	credentials auth.Provider
}

// NewClient creates a REST client. Every request carries a bearer token from
// credentials.
func NewClient(baseURL string, credentials auth.Provider, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: timeout},
		credentials: credentials,
	}
}

func (c *Client) GetConversations(ctx context.Context) (ConversationList, error) {
	var out ConversationList
	err := c.do(ctx, http.MethodGet, "/conversations", nil, &out)
	return out, err
}

func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]protocol.Message, error) {
	var out []protocol.Message
	err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil, &out)
	return out, err
}

func (c *Client) StartConversation(ctx context.Context, targetUserID string) (StartedConversation, error) {
	var out StartedConversation
	body := map[string]string{"targetUserId": targetUserID}
	err := c.do(ctx, http.MethodPost, "/conversations", body, &out)
	return out, err
}

func (c *Client) EditMessage(ctx context.Context, messageID, content string) (protocol.Message, error) {
	var out protocol.Message
	body := map[string]string{"content": content}
	err := c.do(ctx, http.MethodPatch, "/messages/"+url.PathEscape(messageID), body, &out)
	return out, err
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
}

func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(conversationID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.credentials.Credential(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s returned %d", auth.ErrUnauthenticated, method, path, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
