package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/status"
)

// Link starts and stops the push channel. Connect fetches a fresh
// credential, so it is also how a session leaves UNAUTHENTICATED.
type Link interface {
	Connect(ctx context.Context) error
	Disconnect()
}

// SessionService reports and controls the daemon's push channel.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	machine     *status.Machine
	chat        Chat
	link        Link
}

// NewSessionService creates a new session service.
func NewSessionService(sessionName string, machine *status.Machine, chat Chat, link Link) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		chat:        chat,
		link:        link,
	}
}

// Connect opens the push channel and waits until it is ready or rejected.
func (s *SessionService) Connect(ctx context.Context, _ *Empty) (*GetStatusResponse, error) {
	if err := s.link.Connect(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.GetStatus(ctx, &GetStatusRequest{})
}

// Disconnect closes the push channel. Sends queue in the outbox until the
// next Connect.
func (s *SessionService) Disconnect(ctx context.Context, _ *Empty) (*GetStatusResponse, error) {
	s.link.Disconnect()
	return s.GetStatus(ctx, &GetStatusRequest{})
}

func (s *SessionService) GetStatus(ctx context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	current := s.machine.Current()
	resp := &GetStatusResponse{
		Session:          s.sessionName,
		State:            string(current),
		StateSinceUnixMs: unixMs(s.machine.Since()),
		UptimeMs:         time.Since(s.startedAt).Milliseconds(),
	}

	self, err := s.chat.Self(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp.UserID = self

	// Counters are best effort; the state above is what callers poll for.
	if convs, err := s.chat.Conversations(ctx); err == nil {
		resp.Conversations = len(convs)
	}
	if _, total, err := s.chat.Unread(ctx); err == nil {
		resp.UnreadTotal = total
	}
	if ws, err := s.chat.Windows(ctx); err == nil {
		resp.OpenWindows = len(ws.Windows)
	}
	if entries, err := s.chat.Outbox(ctx); err == nil {
		resp.Outbox = len(entries)
	}
	return resp, nil
}
