// Package wsconn is the websocket push transport.
package wsconn

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/transport"
)

// Dialer opens websocket channels. The credential travels as a bearer token
// in the handshake.
type Dialer struct {
	URL     string
	Timeout time.Duration
}

// Dial performs the websocket handshake. 401 and 403 responses are reported
// as auth.ErrUnauthenticated.
func (d *Dialer) Dial(ctx context.Context, credential string) (transport.Channel, error) {
	dialer := ws.Dialer{
		Timeout: d.Timeout,
		Header: ws.HandshakeHeaderHTTP(http.Header{
			"Authorization": []string{"Bearer " + credential},
		}),
	}
	conn, br, _, err := dialer.Dial(ctx, d.URL)
	if err != nil {
		var status ws.StatusError
		if errors.As(err, &status) && (int(status) == http.StatusUnauthorized || int(status) == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake rejected with %d", auth.ErrUnauthenticated, int(status))
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return newConn(conn, br), nil
}

type result struct {
	evt protocol.Event
	err error
}

// Conn is a client-side websocket channel.
type Conn struct {
	conn    net.Conn
	src     io.Reader
	writeMu sync.Mutex
	results chan result
	done    chan struct{}
	once    sync.Once
}

func newConn(conn net.Conn, br *bufio.Reader) *Conn {
	src := io.Reader(conn)
	if br != nil {
		// The server may have sent frames together with the handshake response.
		src = io.MultiReader(br, conn)
	}
	c := &Conn{
		conn:    conn,
		src:     src,
		results: make(chan result),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Send writes one text frame.
func (c *Conn) Send(ctx context.Context, cmd protocol.Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}
	if err := wsutil.WriteClientMessage(c.conn, ws.OpText, data); err != nil {
		return fmt.Errorf("write %s: %w", cmd.Type, err)
	}
	return nil
}

// Receive blocks until the next event, the channel dies, or ctx is done.
func (c *Conn) Receive(ctx context.Context) (protocol.Event, error) {
	select {
	case r, ok := <-c.results:
		if !ok {
			return protocol.Event{}, transport.ErrClosed
		}
		return r.evt, r.err
	case <-ctx.Done():
		return protocol.Event{}, ctx.Err()
	}
}

// Close closes the socket. It is safe to call multiple times.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = ws.WriteFrame(c.conn, ws.MaskFrameInPlace(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.results)
	for {
		data, err := c.readMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.deliver(result{err: fmt.Errorf("%w: %v", transport.ErrClosed, err)})
			}
			return
		}
		evt, err := protocol.ParseEvent(data)
		if !c.deliver(result{evt: evt, err: err}) {
			return
		}
	}
}

func (c *Conn) deliver(r result) bool {
	select {
	case c.results <- r:
		return true
	case <-c.done:
		return false
	}
}

// readMessage returns the payload of the next data frame, answering pings
// along the way.
func (c *Conn) readMessage() ([]byte, error) {
	for {
		header, reader, err := wsutil.NextReader(c.src, ws.StateClientSide)
		if err != nil {
			return nil, err
		}
		payload, err := io.ReadAll(reader)
		if err != nil {
			return nil, err
		}
		if !header.OpCode.IsControl() {
			return payload, nil
		}
		switch header.OpCode {
		case ws.OpClose:
			return nil, io.EOF
		case ws.OpPing:
			c.writeMu.Lock()
			err = ws.WriteFrame(c.conn, ws.MaskFrameInPlace(ws.NewPongFrame(payload)))
			c.writeMu.Unlock()
			if err != nil {
				return nil, err
			}
		}
	}
}
