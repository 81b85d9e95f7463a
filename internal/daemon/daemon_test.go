package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/conn"
	"github.com/matheus3301/chatsync/internal/hub"
	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/pull"
	"github.com/matheus3301/chatsync/internal/search"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport/natsconn"
	"github.com/matheus3301/chatsync/internal/transport/wsconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// fakeBackend serves the pull API and a push websocket. Joining pushes one
// message from bob; every send_message is echoed back as confirmed.
func fakeBackend(t *testing.T) (pullURL, pushURL string) {
	t.Helper()
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/conversations":
			_, _ = w.Write([]byte(`{"userId":"me","conversations":[{"id":"c1","participants":["me","bob"]}]}`))
		case "/conversations/c1/messages":
			_, _ = w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(rest.Close)

	push := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer func() { _ = c.Close() }()
		n := 0
		for {
			data, err := wsutil.ReadClientText(c)
			if err != nil {
				return
			}
			cmd, err := protocol.ParseCommand(data)
			if err != nil {
				continue
			}
			var msg protocol.NewMessage
			switch p := cmd.Payload.(type) {
			case protocol.JoinConversations:
				msg = protocol.NewMessage{ConversationID: "c1", Message: protocol.Message{
					ID: "srv-bob", Sender: "bob", Content: "hello there", CreatedAt: time.Now(),
				}}
			case protocol.SendMessage:
				n++
				msg = protocol.NewMessage{ConversationID: p.ConversationID, Message: protocol.Message{
					ID: "srv-" + string(rune('0'+n)), Sender: "me", Content: p.Content, CreatedAt: time.Now(),
				}}
			default:
				continue
			}
			frame, err := protocol.EncodeEvent(protocol.EventNewMessage, msg)
			if err != nil {
				return
			}
			if err := wsutil.WriteServerText(c, frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(push.Close)

	return rest.URL, "ws" + strings.TrimPrefix(push.URL, "http")
}

func TestDaemonLifecycle(t *testing.T) {
	r := require.New(t)
	// Use a short path to avoid macOS 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "chatsync-test-*")
	r.NoError(err)
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")

	pullURL, pushURL := fakeBackend(t)
	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	creds := auth.Static("tok")

	manager := conn.New(&wsconn.Dialer{URL: pushURL, Timeout: time.Second}, machine, b, logger,
		conn.Options{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond})
	h := hub.New(manager, pull.NewClient(pullURL, creds, time.Second), b, logger, hub.Config{})
	ix, err := search.NewIndex(b, logger)
	r.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ix.Start(ctx)
	defer ix.Stop()
	h.Start(ctx)
	defer h.Stop()

	p := Params{SessionName: "test", SocketPath: socketPath}
	srv, err := NewServer(p, logger,
		api.NewSessionService("test", machine, h, newChannelLink(manager, creds)),
		api.NewChatService("test", h, ix, b, logger))
	r.NoError(err)
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	client, err := api.Dial(socketPath)
	r.NoError(err)
	defer func() { _ = client.Close() }()

	st, err := client.GetStatus(ctx)
	r.NoError(err)
	r.Equal("test", st.Session)
	r.Equal(string(status.Idle), st.State)

	r.NoError(manager.Connect(ctx, creds))
	defer func() { _ = manager.Close() }()

	r.Eventually(func() bool {
		resp, err := client.ListMessages(ctx, "c1", "")
		return err == nil && len(resp.Messages) == 1 && resp.Messages[0].Content == "hello there"
	}, 2*time.Second, 10*time.Millisecond)

	st, err = client.GetStatus(ctx)
	r.NoError(err)
	r.Equal(string(status.Ready), st.State)
	r.Equal("me", st.UserID)
	r.Equal(1, st.Conversations)

	sent, err := client.SendMessage(ctx, "c1", "hi bob")
	r.NoError(err)
	r.Equal("pending", sent.Message.Status)

	r.Eventually(func() bool {
		resp, err := client.ListMessages(ctx, "c1", "")
		if err != nil || len(resp.Messages) != 2 {
			return false
		}
		last := resp.Messages[1]
		return last.ID == "srv-1" && last.Content == "hi bob"
	}, 2*time.Second, 10*time.Millisecond)

	r.Eventually(func() bool {
		res, err := client.SearchMessages(ctx, "hello", "", 10)
		return err == nil && len(res.Results) == 1 && res.Results[0].MessageID == "srv-bob"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectAfterUnauthenticated(t *testing.T) {
	r := require.New(t)
	tmpDir, err := os.MkdirTemp("/tmp", "chatsync-auth-*")
	r.NoError(err)
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")
	tokenPath := filepath.Join(tmpDir, "token")

	pullURL, pushURL := fakeBackend(t)
	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	creds := auth.Checked(auth.File{Path: tokenPath}, time.Now)

	manager := conn.New(&wsconn.Dialer{URL: pushURL, Timeout: time.Second}, machine, b, logger,
		conn.Options{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond})
	defer func() { _ = manager.Close() }()
	h := hub.New(manager, pull.NewClient(pullURL, creds, time.Second), b, logger, hub.Config{})
	link := newChannelLink(manager, creds)
	defer link.stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h.Start(ctx)
	defer h.Stop()

	srv, err := NewServer(Params{SessionName: "test", SocketPath: socketPath}, logger,
		api.NewSessionService("test", machine, h, link),
		api.NewChatService("test", h, nil, b, logger))
	r.NoError(err)
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	client, err := api.Dial(socketPath)
	r.NoError(err)
	defer func() { _ = client.Close() }()

	// No token yet: the channel is rejected and stays down.
	_, err = client.Connect(ctx)
	r.Equal(codes.Unauthenticated, grpcstatus.Code(err))
	st, err := client.GetStatus(ctx)
	r.NoError(err)
	r.Equal(string(status.Unauthenticated), st.State)

	r.NoError(os.WriteFile(tokenPath, []byte("tok\n"), 0600))
	st, err = client.Connect(ctx)
	r.NoError(err)
	r.Equal(string(status.Ready), st.State)

	_, err = client.Connect(ctx)
	r.Equal(codes.FailedPrecondition, grpcstatus.Code(err))

	st, err = client.Disconnect(ctx)
	r.NoError(err)
	r.Equal(string(status.Idle), st.State)
}

func TestCredentialsFallBackToEnv(t *testing.T) {
	r := require.New(t)
	t.Setenv("CHATSYNC_HOME", t.TempDir())
	t.Setenv("CHATSYNC_TEST_TOKEN", "from-env")

	cfg := config.Default()
	cfg.Auth.TokenFile = filepath.Join(t.TempDir(), "missing")
	cfg.Auth.TokenEnv = "CHATSYNC_TEST_TOKEN"

	token, err := provideCredentials(Params{SessionName: "s"}, cfg).Credential(context.Background())
	r.NoError(err)
	r.Equal("from-env", token)

	cfg.Auth.TokenEnv = ""
	_, err = provideCredentials(Params{SessionName: "s"}, cfg).Credential(context.Background())
	r.True(auth.IsUnauthenticated(err))
}

func TestSessionTokenFileUsedByDefault(t *testing.T) {
	r := require.New(t)
	home := t.TempDir()
	t.Setenv("CHATSYNC_HOME", home)
	r.NoError(os.MkdirAll(filepath.Join(home, "sessions", "s"), 0700))
	r.NoError(os.WriteFile(filepath.Join(home, "sessions", "s", "token"), []byte("file-token\n"), 0600))

	cfg := config.Default()
	cfg.Auth.TokenEnv = ""
	token, err := provideCredentials(Params{SessionName: "s"}, cfg).Credential(context.Background())
	r.NoError(err)
	r.Equal("file-token", token)
}

func TestDialerFollowsTransport(t *testing.T) {
	cfg := config.Default()
	d := provideDialer(Params{SessionName: "s"}, cfg, zap.NewNop())
	require.IsType(t, &wsconn.Dialer{}, d)

	cfg.Server.Transport = "nats"
	cfg.Server.PushURL = "nats://localhost:4222"
	d = provideDialer(Params{SessionName: "s"}, cfg, zap.NewNop())
	nd, ok := d.(*natsconn.Dialer)
	require.True(t, ok)
	require.Equal(t, "chat", nd.Prefix)
	require.True(t, strings.HasPrefix(nd.Name, "chatsyncd/s/"))
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	p := Params{SessionName: "fxtest", SocketPath: "/tmp/unused.sock", Config: config.Default()}
	require.NoError(t, fx.ValidateApp(Module(p)))
}

func TestNewServerUsesSocketOverride(t *testing.T) {
	// Use /tmp for short socket paths (macOS 104-char limit).
	tmpDir, err := os.MkdirTemp("/tmp", "chatsync-fx-*")
	require.NoError(t, err)
	defer func() { _ = os.RemoveAll(tmpDir) }()

	socketPath := filepath.Join(tmpDir, "d.sock")
	b := bus.New()
	machine := status.NewMachine(b)
	h := hub.New(nil, nil, b, zap.NewNop(), hub.Config{})

	srv, err := NewServer(
		Params{SessionName: "fxtest", SocketPath: socketPath},
		zap.NewNop(),
		api.NewSessionService("fxtest", machine, h, newChannelLink(nil, nil)),
		api.NewChatService("fxtest", h, nil, b, zap.NewNop()),
	)
	require.NoError(t, err)

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	srv.Stop(context.Background())
	_, err = os.Stat(socketPath)
	require.True(t, os.IsNotExist(err))
}

func TestMetricsServerDisabled(t *testing.T) {
	ms := NewMetricsServer(config.Default(), zap.NewNop())
	ms.Start()
	ms.Stop(context.Background())
}
