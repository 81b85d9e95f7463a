package daemon

import (
	"context"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/conn"
)

// channelLink drives the connection manager with the daemon's credential
// chain. The channel it opens lives until Disconnect or stop, not until the
// request that opened it ends.
type channelLink struct {
	manager *conn.Manager
	creds   auth.Provider
	ctx     context.Context
	cancel  context.CancelFunc
}

func newChannelLink(m *conn.Manager, creds auth.Provider) *channelLink {
	ctx, cancel := context.WithCancel(context.Background())
	return &channelLink{manager: m, creds: creds, ctx: ctx, cancel: cancel}
}

// Connect waits for the first session to be ready or rejected. When ctx ends
// first the manager keeps connecting in the background.
func (l *channelLink) Connect(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- l.manager.Connect(l.ctx, l.creds) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *channelLink) Disconnect() {
	l.manager.Disconnect()
}

func (l *channelLink) stop() {
	l.cancel()
}
