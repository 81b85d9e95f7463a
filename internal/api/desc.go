package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	sessionServiceName = "chatsync.v1.SessionService"
	chatServiceName    = "chatsync.v1.ChatService"
)

// SessionServer is implemented by SessionService.
type SessionServer interface {
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
	Connect(context.Context, *Empty) (*GetStatusResponse, error)
	Disconnect(context.Context, *Empty) (*GetStatusResponse, error)
}

// ChatServer is implemented by ChatService.
type ChatServer interface {
	ListConversations(context.Context, *Empty) (*ListConversationsResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*MessageResponse, error)
	ResendMessage(context.Context, *ResendMessageRequest) (*MessageResponse, error)
	EditMessage(context.Context, *EditMessageRequest) (*MessageResponse, error)
	DeleteMessage(context.Context, *DeleteMessageRequest) (*Empty, error)
	StartConversation(context.Context, *StartConversationRequest) (*ConversationResponse, error)
	DeleteConversation(context.Context, *ConversationRequest) (*Empty, error)
	OpenWindow(context.Context, *ConversationRequest) (*WindowsResponse, error)
	CloseWindow(context.Context, *ConversationRequest) (*WindowsResponse, error)
	MinimizeWindow(context.Context, *ConversationRequest) (*WindowsResponse, error)
	FocusWindow(context.Context, *ConversationRequest) (*WindowsResponse, error)
	ListWindows(context.Context, *Empty) (*WindowsResponse, error)
	Typing(context.Context, *ConversationRequest) (*Empty, error)
	SetVisibility(context.Context, *SetVisibilityRequest) (*Empty, error)
	GetPresence(context.Context, *GetPresenceRequest) (*PresenceResponse, error)
	SearchMessages(context.Context, *SearchRequest) (*SearchResponse, error)
	WatchEvents(*WatchEventsRequest, EventSender) error
}

// EventSender is the server side of the WatchEvents stream.
type EventSender interface {
	Send(*Event) error
	Context() context.Context
}

type eventSender struct{ grpc.ServerStream }

func (s eventSender) Send(e *Event) error { return s.ServerStream.SendMsg(e) }

// unary builds a method descriptor the way generated code does, decoding the
// request into Req and dispatching to call.
func unary[S any, Req any, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// SessionServiceDesc describes the session service.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: sessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(sessionServiceName, "GetStatus", SessionServer.GetStatus),
		unary(sessionServiceName, "Connect", SessionServer.Connect),
		unary(sessionServiceName, "Disconnect", SessionServer.Disconnect),
	},
}

// ChatServiceDesc describes the chat service.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: chatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(chatServiceName, "ListConversations", ChatServer.ListConversations),
		unary(chatServiceName, "ListMessages", ChatServer.ListMessages),
		unary(chatServiceName, "SendMessage", ChatServer.SendMessage),
		unary(chatServiceName, "ResendMessage", ChatServer.ResendMessage),
		unary(chatServiceName, "EditMessage", ChatServer.EditMessage),
		unary(chatServiceName, "DeleteMessage", ChatServer.DeleteMessage),
		unary(chatServiceName, "StartConversation", ChatServer.StartConversation),
		unary(chatServiceName, "DeleteConversation", ChatServer.DeleteConversation),
		unary(chatServiceName, "OpenWindow", ChatServer.OpenWindow),
		unary(chatServiceName, "CloseWindow", ChatServer.CloseWindow),
		unary(chatServiceName, "MinimizeWindow", ChatServer.MinimizeWindow),
		unary(chatServiceName, "FocusWindow", ChatServer.FocusWindow),
		unary(chatServiceName, "ListWindows", ChatServer.ListWindows),
		unary(chatServiceName, "Typing", ChatServer.Typing),
		unary(chatServiceName, "SetVisibility", ChatServer.SetVisibility),
		unary(chatServiceName, "GetPresence", ChatServer.GetPresence),
		unary(chatServiceName, "SearchMessages", ChatServer.SearchMessages),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchEventsRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ChatServer).WatchEvents(in, eventSender{stream})
			},
		},
	},
}

// Register installs both services on s.
func Register(s grpc.ServiceRegistrar, session SessionServer, chat ChatServer) {
	s.RegisterService(&SessionServiceDesc, session)
	s.RegisterService(&ChatServiceDesc, chat)
}
