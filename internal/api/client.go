package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client talks to a session daemon over its Unix domain socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon socket. The connection is lazy; errors surface
// on the first call.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an existing connection. The connection must use the JSON
// content subtype.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, service, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, "/"+service+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	return invoke[GetStatusResponse](ctx, c, sessionServiceName, "GetStatus", &GetStatusRequest{})
}

// Connect asks the daemon to open its push channel with a fresh credential.
func (c *Client) Connect(ctx context.Context) (*GetStatusResponse, error) {
	return invoke[GetStatusResponse](ctx, c, sessionServiceName, "Connect", &Empty{})
}

func (c *Client) Disconnect(ctx context.Context) (*GetStatusResponse, error) {
	return invoke[GetStatusResponse](ctx, c, sessionServiceName, "Disconnect", &Empty{})
}

func (c *Client) ListConversations(ctx context.Context) (*ListConversationsResponse, error) {
	return invoke[ListConversationsResponse](ctx, c, chatServiceName, "ListConversations", &Empty{})
}

func (c *Client) ListMessages(ctx context.Context, conversationID, filter string) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c, chatServiceName, "ListMessages",
		&ListMessagesRequest{ConversationID: conversationID, Filter: filter})
}

func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c, chatServiceName, "SendMessage",
		&SendMessageRequest{ConversationID: conversationID, Content: content})
}

func (c *Client) ResendMessage(ctx context.Context, conversationID, clientID string) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c, chatServiceName, "ResendMessage",
		&ResendMessageRequest{ConversationID: conversationID, ClientID: clientID})
}

func (c *Client) EditMessage(ctx context.Context, conversationID, messageID, content string) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c, chatServiceName, "EditMessage",
		&EditMessageRequest{ConversationID: conversationID, MessageID: messageID, Content: content})
}

func (c *Client) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	_, err := invoke[Empty](ctx, c, chatServiceName, "DeleteMessage",
		&DeleteMessageRequest{ConversationID: conversationID, MessageID: messageID})
	return err
}

func (c *Client) StartConversation(ctx context.Context, targetUserID string) (*ConversationResponse, error) {
	return invoke[ConversationResponse](ctx, c, chatServiceName, "StartConversation",
		&StartConversationRequest{TargetUserID: targetUserID})
}

func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	_, err := invoke[Empty](ctx, c, chatServiceName, "DeleteConversation", &ConversationRequest{ConversationID: conversationID})
	return err
}

// Window operations: "OpenWindow", "CloseWindow", "MinimizeWindow" or
// "FocusWindow".
func (c *Client) Window(ctx context.Context, op, conversationID string) (*WindowsResponse, error) {
	return invoke[WindowsResponse](ctx, c, chatServiceName, op, &ConversationRequest{ConversationID: conversationID})
}

func (c *Client) OpenWindow(ctx context.Context, conversationID string) (*WindowsResponse, error) {
	return c.Window(ctx, "OpenWindow", conversationID)
}

func (c *Client) ListWindows(ctx context.Context) (*WindowsResponse, error) {
	return invoke[WindowsResponse](ctx, c, chatServiceName, "ListWindows", &Empty{})
}

func (c *Client) Typing(ctx context.Context, conversationID string) error {
	_, err := invoke[Empty](ctx, c, chatServiceName, "Typing", &ConversationRequest{ConversationID: conversationID})
	return err
}

func (c *Client) SetVisibility(ctx context.Context, visible bool) error {
	_, err := invoke[Empty](ctx, c, chatServiceName, "SetVisibility", &SetVisibilityRequest{Visible: visible})
	return err
}

func (c *Client) GetPresence(ctx context.Context, userID string) (*PresenceResponse, error) {
	return invoke[PresenceResponse](ctx, c, chatServiceName, "GetPresence", &GetPresenceRequest{UserID: userID})
}

func (c *Client) SearchMessages(ctx context.Context, query, conversationID string, limit int) (*SearchResponse, error) {
	return invoke[SearchResponse](ctx, c, chatServiceName, "SearchMessages",
		&SearchRequest{Query: query, ConversationID: conversationID, Limit: limit})
}

// EventStream receives events from WatchEvents.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF when the daemon ends the
// stream.
func (s *EventStream) Recv() (*Event, error) {
	evt := new(Event)
	if err := s.stream.RecvMsg(evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// WatchEvents streams bus events whose kind starts with prefix until ctx is
// done.
func (c *Client) WatchEvents(ctx context.Context, prefix string) (*EventStream, error) {
	desc := &ChatServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, "/"+chatServiceName+"/"+desc.StreamName)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&WatchEventsRequest{Prefix: prefix}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}
