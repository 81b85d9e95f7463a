package daemon

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/conn"
	"github.com/matheus3301/chatsync/internal/hub"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/pull"
	"github.com/matheus3301/chatsync/internal/search"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport"
	"github.com/matheus3301/chatsync/internal/transport/natsconn"
	"github.com/matheus3301/chatsync/internal/transport/wsconn"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	// Config is the effective configuration. Nil loads it from the default path.
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCredentials,
			provideDialer,
			provideManager,
			providePuller,
			provideHub,
			provideLink,
			provideIndex,
			provideSessionService,
			provideChatService,
			NewServer,
			NewMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	return config.Effective(session.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, logging.Options{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideCredentials prefers a token file (configured, or the session's
// own token file when present) and falls back to the environment variable.
func provideCredentials(p Params, cfg *config.Config) auth.Provider {
	path := cfg.Auth.TokenFile
	if path == "" {
		if _, err := os.Stat(session.TokenPath(p.SessionName)); err == nil {
			path = session.TokenPath(p.SessionName)
		}
	}
	var sources []auth.Provider
	if path != "" {
		sources = append(sources, auth.File{Path: path})
	}
	if cfg.Auth.TokenEnv != "" {
		sources = append(sources, auth.Env{Name: cfg.Auth.TokenEnv})
	}
	return auth.Checked(firstOf(sources), time.Now)
}

func firstOf(sources []auth.Provider) auth.Provider {
	return auth.ProviderFunc(func(ctx context.Context) (string, error) {
		err := errors.New("no credential source configured")
		for _, src := range sources {
			var token string
			token, err = src.Credential(ctx)
			if err == nil {
				return token, nil
			}
		}
		if !auth.IsUnauthenticated(err) {
			err = errors.Join(auth.ErrUnauthenticated, err)
		}
		return "", err
	})
}

func provideDialer(p Params, cfg *config.Config, logger *zap.Logger) transport.Dialer {
	instance := uuid.NewString()
	logger.Info("transport selected",
		zap.String("transport", cfg.Server.Transport),
		zap.String("url", cfg.Server.PushURL),
		zap.String("instance", instance))
	if cfg.Server.Transport == "nats" {
		return &natsconn.Dialer{
			URL:     cfg.Server.PushURL,
			Prefix:  cfg.Server.NATSPrefix,
			Name:    "chatsyncd/" + p.SessionName + "/" + instance,
			Timeout: cfg.Server.DialTimeout,
			Logger:  logger,
		}
	}
	return &wsconn.Dialer{URL: cfg.Server.PushURL, Timeout: cfg.Server.DialTimeout}
}

func provideManager(d transport.Dialer, m *status.Machine, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *conn.Manager {
	return conn.New(d, m, b, logger, conn.Options{
		InitialBackoff: cfg.Server.BackoffInitial,
		MaxBackoff:     cfg.Server.BackoffMax,
	})
}

func providePuller(cfg *config.Config, creds auth.Provider) pull.Puller {
	return pull.NewClient(cfg.Server.PullURL, creds, cfg.Server.RequestTimeout)
}

func provideHub(m *conn.Manager, puller pull.Puller, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *hub.Hub {
	return hub.New(m, puller, b, logger, hub.Config{
		WindowCapacity: cfg.Chat.WindowCapacity,
		PendingTimeout: cfg.Chat.PendingTimeout,
		TypingTimeout:  cfg.Chat.TypingTimeout,
	})
}

func provideIndex(b *bus.Bus, logger *zap.Logger) (*search.Index, error) {
	return search.NewIndex(b, logger)
}

func provideLink(m *conn.Manager, creds auth.Provider) *channelLink {
	return newChannelLink(m, creds)
}

func provideSessionService(p Params, m *status.Machine, h *hub.Hub, link *channelLink) *api.SessionService {
	return api.NewSessionService(p.SessionName, m, h, link)
}

func provideChatService(p Params, h *hub.Hub, ix *search.Index, b *bus.Bus, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(p.SessionName, h, ix, b, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	ms *MetricsServer,
	lk *lock.Lock,
	manager *conn.Manager,
	link *channelLink,
	h *hub.Hub,
	ix *search.Index,
	b *bus.Bus,
	logger *zap.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The index subscribes before the hub so no hydrated message is missed.
			ix.Start(runCtx)
			h.Start(runCtx)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			ms.Start()

			go func() {
				err := link.Connect(runCtx)
				switch {
				case err == nil:
				case auth.IsUnauthenticated(err):
					logger.Error("not authenticated; update the token and run chatsyncctl connect", zap.Error(err))
				case errors.Is(err, context.Canceled):
				default:
					logger.Error("connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			link.stop()
			_ = manager.Close()
			h.Stop()
			ix.Stop()
			srv.Stop(ctx)
			ms.Stop(ctx)
			b.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
