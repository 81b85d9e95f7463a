// Package natsconn is the NATS push transport. Each conversation room is a
// subject; joining a room subscribes to it.
package natsconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultPrefix is the subject namespace used when none is configured.
const DefaultPrefix = "chatsync"

// Subjects derives the subject layout for one user.
//
//	<prefix>.room.<conversationId>   room events (new_message, seen, typing)
//	<prefix>.user.<userId>           user events (presence, chat_alert, error)
//	<prefix>.cmd.<userId>            commands from this client
type Subjects struct {
	Prefix string
	UserID string
}

func (s Subjects) Room(conversationID string) string {
	return s.Prefix + ".room." + conversationID
}

func (s Subjects) User() string {
	return s.Prefix + ".user." + s.UserID
}

func (s Subjects) Commands() string {
	return s.Prefix + ".cmd." + s.UserID
}

// Dialer opens NATS channels. The credential is used as the connection token
// and must be a JWT whose subject is the local user id.
type Dialer struct {
	URL     string
	Prefix  string
	Name    string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Dial connects to NATS and subscribes to the user subject. Reconnection is
// left to the connection manager so that every reconnect fetches a fresh
// credential and re-joins rooms.
func (d *Dialer) Dial(_ context.Context, credential string) (transport.Channel, error) {
	userID, err := auth.Subject(credential)
	if err != nil {
		return nil, err
	}
	prefix := d.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Conn{
		subjects: Subjects{Prefix: prefix, UserID: userID},
		msgs:     make(chan *nats.Msg, 256),
		closed:   make(chan struct{}),
		rooms:    make(map[string]*nats.Subscription),
		logger:   logger,
	}

	opts := []nats.Option{
		nats.Name(d.Name),
		nats.Token(credential),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.markClosed()
		}),
	}
	if d.Timeout > 0 {
		opts = append(opts, nats.Timeout(d.Timeout))
	}

	nc, err := nats.Connect(d.URL, opts...)
	if err != nil {
		if errors.Is(err, nats.ErrAuthorization) || errors.Is(err, nats.ErrAuthExpired) {
			return nil, fmt.Errorf("%w: %v", auth.ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	c.nc = nc

	if _, err := nc.ChanSubscribe(c.subjects.User(), c.msgs); err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", c.subjects.User(), err)
	}
	return c, nil
}

// Conn is a NATS-backed channel.
type Conn struct {
	nc       *nats.Conn
	subjects Subjects
	msgs     chan *nats.Msg
	logger   *zap.Logger

	mu    sync.Mutex
	rooms map[string]*nats.Subscription

	closed    chan struct{}
	closeOnce sync.Once
}

func (c *Conn) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Send publishes the command. join_conversations also subscribes to each
// room subject not joined yet.
func (c *Conn) Send(_ context.Context, cmd protocol.Command) error {
	if join, ok := cmd.Payload.(protocol.JoinConversations); ok {
		if err := c.join(join.ConversationIDs); err != nil {
			return err
		}
	}
	data, err := cmd.Encode()
	if err != nil {
		return err
	}
	if err := c.nc.Publish(c.subjects.Commands(), data); err != nil {
		return fmt.Errorf("publish %s: %w", cmd.Type, err)
	}
	return nil
}

func (c *Conn) join(ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if _, ok := c.rooms[id]; ok {
			continue
		}
		sub, err := c.nc.ChanSubscribe(c.subjects.Room(id), c.msgs)
		if err != nil {
			return fmt.Errorf("join room %s: %w", id, err)
		}
		c.rooms[id] = sub
	}
	return nil
}

// Rooms returns the number of joined rooms.
func (c *Conn) Rooms() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rooms)
}

// Receive returns the next event from any subscribed subject.
func (c *Conn) Receive(ctx context.Context) (protocol.Event, error) {
	select {
	case msg := <-c.msgs:
		return protocol.ParseEvent(msg.Data)
	case <-c.closed:
		return protocol.Event{}, transport.ErrClosed
	case <-ctx.Done():
		return protocol.Event{}, ctx.Err()
	}
}

// Close drains nothing: pending events of a dead session are discarded.
func (c *Conn) Close() error {
	c.nc.Close()
	c.markClosed()
	return nil
}
