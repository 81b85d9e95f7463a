package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/hub"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/presence"
	"github.com/matheus3301/chatsync/internal/search"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Chat is the hub surface exposed over the API.
type Chat interface {
	Self(ctx context.Context) (string, error)
	Conversations(ctx context.Context) ([]hub.ConversationView, error)
	Messages(ctx context.Context, conversationID, filter string) ([]store.Message, error)
	Send(ctx context.Context, conversationID, content string) (store.Message, error)
	Resend(ctx context.Context, conversationID, clientID string) (store.Message, error)
	Edit(ctx context.Context, conversationID, msgID, content string) (store.Message, error)
	Delete(ctx context.Context, conversationID, msgID string) error
	StartConversation(ctx context.Context, targetUserID string) (store.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	OpenWindow(ctx context.Context, conversationID string) (string, error)
	CloseWindow(ctx context.Context, conversationID string) error
	MinimizeWindow(ctx context.Context, conversationID string) error
	FocusWindow(ctx context.Context, conversationID string) error
	Windows(ctx context.Context) (hub.WindowState, error)
	Typing(ctx context.Context, conversationID string) error
	SetVisibility(ctx context.Context, visible bool) error
	Presence(ctx context.Context, userID string) (presence.Entry, error)
	Unread(ctx context.Context) (map[string]int, int, error)
	Outbox(ctx context.Context) ([]outbox.Entry, error)
}

// Searcher answers message searches.
type Searcher interface {
	Search(query, conversationID string, limit int) ([]search.Result, error)
}

// ChatService exposes conversations, messages and windows of the session.
type ChatService struct {
	sessionName string
	chat        Chat
	searcher    Searcher
	bus         *bus.Bus
	logger      *zap.Logger
}

// NewChatService creates a new chat service backed by the hub.
func NewChatService(sessionName string, chat Chat, searcher Searcher, b *bus.Bus, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{sessionName: sessionName, chat: chat, searcher: searcher, bus: b, logger: logger}
}

func (s *ChatService) ListConversations(ctx context.Context, _ *Empty) (*ListConversationsResponse, error) {
	convs, err := s.chat.Conversations(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListConversationsResponse{Conversations: make([]Conversation, 0, len(convs))}
	for _, c := range convs {
		view := toConversationView(c)
		resp.UnreadTotal += view.Unread
		resp.Conversations = append(resp.Conversations, view)
	}
	return resp, nil
}

func (s *ChatService) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	msgs, err := s.chat.Messages(ctx, req.ConversationID, req.Filter)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListMessagesResponse{Messages: toMessages(msgs)}, nil
}

func (s *ChatService) SendMessage(ctx context.Context, req *SendMessageRequest) (*MessageResponse, error) {
	m, err := s.chat.Send(ctx, req.ConversationID, req.Content)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MessageResponse{Message: toMessage(m)}, nil
}

func (s *ChatService) ResendMessage(ctx context.Context, req *ResendMessageRequest) (*MessageResponse, error) {
	m, err := s.chat.Resend(ctx, req.ConversationID, req.ClientID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MessageResponse{Message: toMessage(m)}, nil
}

func (s *ChatService) EditMessage(ctx context.Context, req *EditMessageRequest) (*MessageResponse, error) {
	m, err := s.chat.Edit(ctx, req.ConversationID, req.MessageID, req.Content)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MessageResponse{Message: toMessage(m)}, nil
}

func (s *ChatService) DeleteMessage(ctx context.Context, req *DeleteMessageRequest) (*Empty, error) {
	if err := s.chat.Delete(ctx, req.ConversationID, req.MessageID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ChatService) StartConversation(ctx context.Context, req *StartConversationRequest) (*ConversationResponse, error) {
	if req.TargetUserID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "target user id is required")
	}
	c, err := s.chat.StartConversation(ctx, req.TargetUserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ConversationResponse{Conversation: toConversation(c)}, nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, req *ConversationRequest) (*Empty, error) {
	if err := s.chat.DeleteConversation(ctx, req.ConversationID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ChatService) OpenWindow(ctx context.Context, req *ConversationRequest) (*WindowsResponse, error) {
	evicted, err := s.chat.OpenWindow(ctx, req.ConversationID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := s.ListWindows(ctx, nil)
	if err != nil {
		return nil, err
	}
	resp.Evicted = evicted
	return resp, nil
}

func (s *ChatService) CloseWindow(ctx context.Context, req *ConversationRequest) (*WindowsResponse, error) {
	return s.windowOp(ctx, req.ConversationID, s.chat.CloseWindow)
}

func (s *ChatService) MinimizeWindow(ctx context.Context, req *ConversationRequest) (*WindowsResponse, error) {
	return s.windowOp(ctx, req.ConversationID, s.chat.MinimizeWindow)
}

func (s *ChatService) FocusWindow(ctx context.Context, req *ConversationRequest) (*WindowsResponse, error) {
	return s.windowOp(ctx, req.ConversationID, s.chat.FocusWindow)
}

func (s *ChatService) windowOp(ctx context.Context, id string, op func(context.Context, string) error) (*WindowsResponse, error) {
	if err := op(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return s.ListWindows(ctx, nil)
}

func (s *ChatService) ListWindows(ctx context.Context, _ *Empty) (*WindowsResponse, error) {
	ws, err := s.chat.Windows(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &WindowsResponse{
		Windows:  toWindows(ws.Windows, ws.Active),
		Active:   ws.Active,
		Capacity: ws.Capacity,
	}, nil
}

func (s *ChatService) Typing(ctx context.Context, req *ConversationRequest) (*Empty, error) {
	if err := s.chat.Typing(ctx, req.ConversationID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ChatService) SetVisibility(ctx context.Context, req *SetVisibilityRequest) (*Empty, error) {
	if err := s.chat.SetVisibility(ctx, req.Visible); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ChatService) GetPresence(ctx context.Context, req *GetPresenceRequest) (*PresenceResponse, error) {
	e, err := s.chat.Presence(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := toPresence(e)
	return &resp, nil
}

func (s *ChatService) SearchMessages(_ context.Context, req *SearchRequest) (*SearchResponse, error) {
	if s.searcher == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "search index not available")
	}
	results, err := s.searcher.Search(req.Query, req.ConversationID, req.Limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "search messages: %v", err)
	}
	return &SearchResponse{Results: toSearchResults(results)}, nil
}

func (s *ChatService) WatchEvents(req *WatchEventsRequest, stream EventSender) error {
	ch, unsub := s.bus.Subscribe(req.Prefix, 256)
	defer unsub()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			out, err := s.envelope(evt)
			if err != nil {
				s.logger.Warn("event not streamed", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *ChatService) envelope(evt bus.Event) (*Event, error) {
	out := &Event{
		EventID:          uuid.New().String(),
		Session:          s.sessionName,
		Kind:             evt.Kind,
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
	}
	if evt.Payload != nil {
		payload, err := jsonCodec{}.Marshal(eventPayload(evt.Payload))
		if err != nil {
			return nil, err
		}
		out.Payload = payload
	}
	return out, nil
}
