// Package transport defines the push channel abstraction shared by the
// websocket and NATS implementations.
package transport

import (
	"context"
	"errors"

	"github.com/matheus3301/chatsync/internal/protocol"
)

// ErrClosed is returned by Receive once the channel is gone.
var ErrClosed = errors.New("channel closed")

// Channel is one live push connection. Send may be called concurrently with
// Receive. Receive returns errors wrapping protocol.ErrMalformed for frames
// that could not be decoded; any other error means the channel is dead.
type Channel interface {
	Send(ctx context.Context, cmd protocol.Command) error
	Receive(ctx context.Context) (protocol.Event, error)
	Close() error
}

// Dialer opens channels. A credential the server rejects yields an error
// wrapping auth.ErrUnauthenticated.
type Dialer interface {
	Dial(ctx context.Context, credential string) (Channel, error)
}
