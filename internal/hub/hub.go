// Package hub owns the client-side chat state of one session and serializes
// every change to it through a single event loop. Push events, timers and
// user intents are queued as closures and run one at a time, so the store,
// reconciler, ledger, trackers and window set it owns need no locking.
package hub

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/conn"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/presence"
	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/pull"
	"github.com/matheus3301/chatsync/internal/receipt"
	"github.com/matheus3301/chatsync/internal/store"
	chatsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/unread"
	"github.com/matheus3301/chatsync/internal/window"
	"go.uber.org/zap"
)

var (
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrUnknownMessage      = errors.New("unknown message")
	ErrNotFailed           = chatsync.ErrNotFailed
	ErrUnknownPlaceholder  = chatsync.ErrUnknownPlaceholder
	ErrNotReady            = errors.New("conversation list not loaded yet")
	ErrEmptyMessage        = errors.New("empty message")
	ErrNotOwner            = errors.New("message was not sent by this user")
	ErrNotConfirmed        = errors.New("message is not confirmed yet")
	ErrWindowNotOpen       = errors.New("window not open")
	ErrStopped             = errors.New("hub stopped")
)

// Connection is the part of the connection manager the hub drives.
type Connection interface {
	On(t protocol.EventType, h conn.Handler) func()
	OnLifecycle(h func(conn.Lifecycle)) func()
	SetRoomSource(src conn.RoomSource)
	Send(ctx context.Context, cmd protocol.Command) error
}

// Config tunes the hub. Zero values fall back to defaults.
type Config struct {
	WindowCapacity int
	PendingTimeout time.Duration
	TypingTimeout  time.Duration
	// SweepInterval is how often timers (pending, typing) are checked.
	SweepInterval time.Duration
	// SendTimeout bounds one command write on the push channel.
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.WindowCapacity <= 0 {
		c.WindowCapacity = window.DefaultCapacity
	}
	if c.PendingTimeout <= 0 {
		c.PendingTimeout = chatsync.DefaultPendingTimeout
	}
	if c.TypingTimeout <= 0 {
		c.TypingTimeout = presence.DefaultTypingTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 250 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	return c
}

// Hub is the session orchestrator.
type Hub struct {
	cfg    Config
	conn   Connection
	puller pull.Puller
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	ops    chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	unsubs []func()

	// Owned by the loop.
	self     string
	hydrated bool
	loaded   map[string]bool
	store    *store.Store
	recon    *chatsync.Reconciler
	outbox   *outbox.Outbox
	receipts *receipt.Tracker
	unread   *unread.Ledger
	presence *presence.Tracker
	typing   *presence.Typing
	local    *presence.Local
	windows  *window.Multiplexer
}

// New creates a hub. Start must be called before any intent or query.
func New(c Connection, p pull.Puller, b *bus.Bus, logger *zap.Logger, cfg Config) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	s := store.New()
	h := &Hub{
		cfg:      cfg,
		conn:     c,
		puller:   p,
		bus:      b,
		logger:   logger,
		now:      time.Now,
		ops:      make(chan func(), 64),
		done:     make(chan struct{}),
		loaded:   make(map[string]bool),
		store:    s,
		recon:    chatsync.NewReconciler(s, cfg.PendingTimeout, logger),
		receipts: receipt.NewTracker(s),
		unread:   unread.New(""),
		presence: presence.NewTracker(),
		typing:   presence.NewTyping(cfg.TypingTimeout),
		local:    presence.NewLocal(cfg.TypingTimeout),
		windows:  window.New(cfg.WindowCapacity),
	}
	h.outbox = outbox.New(dispatcher{h}, logger)
	h.ctx, h.cancel = context.WithCancel(context.Background())
	return h
}

// Start registers the push handlers and the room source and launches the
// event loop. The loop runs until ctx is done or Stop is called.
func (h *Hub) Start(ctx context.Context) {
	for _, t := range []protocol.EventType{
		protocol.EventNewMessage,
		protocol.EventSeen,
		protocol.EventChatAlert,
		protocol.EventPresence,
		protocol.EventTyping,
	} {
		h.unsubs = append(h.unsubs, h.conn.On(t, func(evt protocol.Event) {
			h.post(func() { h.handleEvent(evt) })
		}))
	}
	h.unsubs = append(h.unsubs, h.conn.OnLifecycle(func(l conn.Lifecycle) {
		h.post(func() { h.handleLifecycle(l) })
	}))
	h.conn.SetRoomSource(h.Rooms)

	go h.run(ctx)
	h.logger.Info("hub started", zap.Int("window_capacity", h.cfg.WindowCapacity))
}

// Stop unregisters the handlers and waits for the loop to exit.
func (h *Hub) Stop() {
	for _, unsub := range h.unsubs {
		unsub()
	}
	h.unsubs = nil
	h.cancel()
	<-h.done
	h.logger.Info("hub stopped")
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer h.cancel()

	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		case fn := <-h.ops:
			fn()
		case <-ticker.C:
			h.sweep(h.now())
		}
	}
}

// post queues fn on the loop without waiting for it to run.
func (h *Hub) post(fn func()) bool {
	select {
	case h.ops <- fn:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// do runs fn on the loop and waits for its result.
func (h *Hub) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case h.ops <- func() { errc <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrStopped
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
}

// query runs fn on the loop and returns its value.
func query[T any](ctx context.Context, h *Hub, fn func() T) (T, error) {
	var out T
	err := h.do(ctx, func() error {
		out = fn()
		return nil
	})
	return out, err
}

func (h *Hub) publish(kind string, payload any) {
	if h.bus != nil {
		h.bus.Publish(bus.NewEvent(kind, payload))
	}
}

// send writes one command on the push channel. Errors are logged and
// returned; the command is not retried.
func (h *Hub) send(cmd protocol.Command) error {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.SendTimeout)
	defer cancel()
	err := h.conn.Send(ctx, cmd)
	if err != nil {
		lvl := h.logger.Warn
		if errors.Is(err, conn.ErrNotConnected) {
			lvl = h.logger.Debug
		}
		lvl("command not sent", zap.String("type", string(cmd.Type)), zap.Error(err))
	}
	return err
}

// dispatcher adapts the hub to the outbox. It only runs on the loop.
type dispatcher struct{ h *Hub }

func (d dispatcher) Send(ctx context.Context, cmd protocol.Command) error {
	return d.h.conn.Send(ctx, cmd)
}

func (h *Hub) flush() {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.SendTimeout)
	defer cancel()
	h.outbox.Dispatch(ctx)
}

// sweep runs the timers: pending sends that timed out, expired remote typing
// and idle local typing.
func (h *Hub) sweep(now time.Time) {
	for _, m := range h.recon.Sweep(now) {
		h.outbox.Fail(m.ID)
		metrics.SendFailures.Inc()
		h.logger.Warn("send timed out",
			zap.String("conversation_id", m.ConversationID),
			zap.String("client_id", m.ID))
		h.publish(bus.KindMessageFailed, store.MessageChange{ConversationID: m.ConversationID, Message: m})
	}
	for _, conv := range h.typing.Sweep(now) {
		h.publishTyping(conv)
	}
	for _, conv := range h.local.Sweep(now) {
		_ = h.send(protocol.StopTyping(conv))
	}
}

func (h *Hub) publishTyping(conv string) {
	h.publish(bus.KindTypingChanged, TypingChange{
		ConversationID: conv,
		Typers:         h.typing.Typers(conv, h.now()),
	})
}

func (h *Hub) publishUnread(conv string) {
	total := h.unread.Total()
	metrics.UnreadTotal.Set(float64(total))
	h.publish(bus.KindUnreadChanged, UnreadChange{
		ConversationID: conv,
		Count:          h.unread.Count(conv),
		Total:          total,
	})
}

func (h *Hub) publishWindows(evicted string) {
	metrics.OpenWindows.Set(float64(h.windows.Len()))
	h.publish(bus.KindWindowChanged, WindowChange{
		Windows: h.windows.List(),
		Active:  h.windows.Active(),
		Evicted: evicted,
	})
}

func (h *Hub) publishConversation(id string) {
	if c, ok := h.store.Conversation(id); ok {
		h.publish(bus.KindConversationUpserted, c)
	}
}
