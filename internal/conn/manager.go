// Package conn owns the process-wide push channel: credential refresh on
// every dial, mandatory room join, reconnect with backoff and typed event
// dispatch.
package conn

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrClosed           = errors.New("connection manager closed")
)

var allStates = []string{
	string(status.Idle), string(status.Connecting), string(status.Joining), string(status.Ready),
	string(status.Reconnecting), string(status.Unauthenticated), string(status.Closed),
}

// Handler receives one inbound event. Handlers run on the manager's read
// goroutine and must not block.
type Handler func(protocol.Event)

// RoomSource returns the conversation ids to join after each connect.
type RoomSource func(ctx context.Context) ([]string, error)

// LifecycleKind distinguishes lifecycle signals.
type LifecycleKind int

const (
	Connected LifecycleKind = iota
	Disconnected
)

func (k LifecycleKind) String() string {
	if k == Connected {
		return "connected"
	}
	return "disconnected"
}

// Lifecycle is delivered to lifecycle handlers in order with events: a
// Connected signal always precedes the first event of its session.
type Lifecycle struct {
	Kind    LifecycleKind
	Attempt int
	Rooms   []string
	Err     error
}

// Options tunes the manager.
type Options struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Manager maintains one push channel across reconnects.
type Manager struct {
	dialer  transport.Dialer
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options

	mu        sync.Mutex
	rooms     RoomSource
	handlers  map[protocol.EventType]map[int]Handler
	lifecycle map[int]func(Lifecycle)
	nextID    int
	ch        transport.Channel
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
}

// New creates a manager. machine and b may be nil.
func New(dialer transport.Dialer, machine *status.Machine, b *bus.Bus, logger *zap.Logger, opts Options) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if machine == nil {
		machine = status.NewMachine(b)
	}
	return &Manager{
		dialer:    dialer,
		machine:   machine,
		bus:       b,
		logger:    logger,
		opts:      opts,
		handlers:  make(map[protocol.EventType]map[int]Handler),
		lifecycle: make(map[int]func(Lifecycle)),
	}
}

// SetRoomSource sets where room ids come from. Without one the manager joins
// an empty room list.
func (m *Manager) SetRoomSource(src RoomSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms = src
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// On registers a handler for one event type and returns its unsubscribe
// function. Handlers survive reconnects.
func (m *Manager) On(t protocol.EventType, h Handler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	if m.handlers[t] == nil {
		m.handlers[t] = make(map[int]Handler)
	}
	m.handlers[t][id] = h
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers[t], id)
	}
}

// OnLifecycle registers a lifecycle handler and returns its unsubscribe
// function.
func (m *Manager) OnLifecycle(h func(Lifecycle)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.lifecycle[id] = h
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.lifecycle, id)
	}
}

// Handlers returns the number of registered event handlers.
func (m *Manager) Handlers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.lifecycle)
	for _, hs := range m.handlers {
		n += len(hs)
	}
	return n
}

// Connect starts the connection loop and blocks until the first session is
// ready, authentication fails or ctx is done. After it returns nil the loop
// keeps reconnecting on its own until Disconnect or Close.
func (m *Manager) Connect(ctx context.Context, provider auth.Provider) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.cancel != nil {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	ready := make(chan error, 1)
	go m.run(runCtx, provider, ready, done)

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		m.Disconnect()
		return ctx.Err()
	}
}

// Disconnect stops the connection loop and closes the channel. Handlers are
// kept so a later Connect resumes dispatching to them.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.transition(status.Idle)
}

// Close disconnects and removes every handler. The manager cannot be reused.
func (m *Manager) Close() error {
	m.Disconnect()
	m.mu.Lock()
	m.closed = true
	clear(m.handlers)
	clear(m.lifecycle)
	m.mu.Unlock()
	m.transition(status.Closed)
	return nil
}

// Send writes a command on the live channel.
func (m *Manager) Send(ctx context.Context, cmd protocol.Command) error {
	m.mu.Lock()
	ch := m.ch
	m.mu.Unlock()
	if ch == nil {
		return ErrNotConnected
	}
	return ch.Send(ctx, cmd)
}

func (m *Manager) run(ctx context.Context, provider auth.Provider, ready chan<- error, done chan struct{}) {
	defer close(done)
	bo := newBackoff(m.opts.InitialBackoff, m.opts.MaxBackoff)
	notify := func(err error) {
		if ready != nil {
			ready <- err
			ready = nil
		}
	}

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			metrics.Reconnects.Inc()
		}
		err := m.session(ctx, provider, attempt, func() {
			bo.Reset()
			notify(nil)
		})
		if ctx.Err() != nil {
			notify(ctx.Err())
			return
		}
		if errors.Is(err, auth.ErrUnauthenticated) {
			m.logger.Error("push channel rejected credential", zap.Error(err))
			m.transition(status.Unauthenticated)
			m.publish(bus.KindUnauthenticated, err)
			m.release(done)
			notify(err)
			return
		}

		delay := bo.Next()
		m.logger.Warn("push channel lost, reconnecting",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay))
		m.publish(bus.KindConnError, err)
		m.transition(status.Reconnecting)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			notify(ctx.Err())
			return
		}
	}
}

// release forgets the loop that owns done so Connect may be called again.
func (m *Manager) release(done chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == done {
		m.cancel()
		m.cancel, m.done = nil, nil
	}
}

func (m *Manager) session(ctx context.Context, provider auth.Provider, attempt int, onReady func()) error {
	m.transition(status.Connecting)

	credential, err := provider.Credential(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, auth.ErrUnauthenticated) {
			return err
		}
		return fmt.Errorf("%w: %v", auth.ErrUnauthenticated, err)
	}

	ch, err := m.dialer.Dial(ctx, credential)
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	m.transition(status.Joining)
	m.mu.Lock()
	src := m.rooms
	m.mu.Unlock()
	var rooms []string
	if src != nil {
		if rooms, err = src(ctx); err != nil {
			return fmt.Errorf("load rooms: %w", err)
		}
	}
	if err := ch.Send(ctx, protocol.Join(rooms)); err != nil {
		return fmt.Errorf("join rooms: %w", err)
	}

	m.setChannel(ch)
	m.transition(status.Ready)
	m.logger.Info("push channel ready", zap.Int("attempt", attempt), zap.Int("rooms", len(rooms)))
	m.emit(Lifecycle{Kind: Connected, Attempt: attempt, Rooms: rooms})
	m.publish(bus.KindConnected, rooms)
	onReady()

	for {
		evt, err := ch.Receive(ctx)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				metrics.MalformedFrames.Inc()
				m.logger.Warn("dropping malformed frame", zap.Error(err))
				continue
			}
			m.drop(err)
			return err
		}
		if evt.IsUnauthenticated() {
			err := fmt.Errorf("%w: %s", auth.ErrUnauthenticated, evt.Payload.(protocol.Error).Message)
			m.drop(err)
			return err
		}
		metrics.EventsTotal.WithLabelValues(string(evt.Type)).Inc()
		m.dispatch(evt)
	}
}

func (m *Manager) drop(err error) {
	m.setChannel(nil)
	m.emit(Lifecycle{Kind: Disconnected, Err: err})
	m.publish(bus.KindDisconnected, err)
}

func (m *Manager) setChannel(ch transport.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ch = ch
}

func (m *Manager) dispatch(evt protocol.Event) {
	m.mu.Lock()
	hs := m.handlers[evt.Type]
	ids := make([]int, 0, len(hs))
	for id := range hs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]Handler, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, hs[id])
	}
	m.mu.Unlock()

	for _, h := range fns {
		h(evt)
	}
}

func (m *Manager) emit(l Lifecycle) {
	m.mu.Lock()
	ids := make([]int, 0, len(m.lifecycle))
	for id := range m.lifecycle {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Lifecycle), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.lifecycle[id])
	}
	m.mu.Unlock()

	for _, h := range fns {
		h(l)
	}
}

func (m *Manager) publish(kind string, payload any) {
	if m.bus != nil {
		m.bus.Publish(bus.NewEvent(kind, payload))
	}
}

func (m *Manager) transition(to status.State) {
	if m.machine.Current() == to {
		return
	}
	if err := m.machine.Transition(to); err != nil {
		m.logger.Debug("ignored state transition", zap.Error(err))
		return
	}
	metrics.SetState(string(to), allStates)
}
