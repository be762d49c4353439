package daemonserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cpi-si/claude-hooks-daemon/internal/builtin"
	"github.com/cpi-si/claude-hooks-daemon/internal/config"
	"github.com/cpi-si/claude-hooks-daemon/internal/dispatch"
	"github.com/cpi-si/claude-hooks-daemon/internal/handler"
	"github.com/cpi-si/claude-hooks-daemon/internal/identity"
	"github.com/cpi-si/claude-hooks-daemon/internal/protocol"
	"github.com/cpi-si/claude-hooks-daemon/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, idleTimeoutSeconds int) (*Server, identity.Identity) {
	t.Helper()
	dir := t.TempDir()

	reg, err := handler.Build([]handler.Registered{
		{Handler: builtin.NewDestructiveGit(10, nil), Enabled: true},
		{Handler: builtin.NewBritishEnglish(56, nil), Enabled: true},
	})
	require.NoError(t, err)

	id := identity.Identity{
		ProjectRoot: dir,
		RuntimeDir:  dir,
		SocketPath:  filepath.Join(dir, "test.sock"),
		PIDPath:     filepath.Join(dir, "test.pid"),
	}

	cfg := config.Default()
	cfg.Daemon.IdleTimeoutSeconds = idleTimeoutSeconds

	srv := &Server{
		Identity:       id,
		Config:         &cfg,
		Dispatcher:     dispatch.New(reg, session.New(), discardLogger()),
		Logger:         discardLogger(),
		RequestTimeout: 2 * time.Second,
	}
	return srv, id
}

func TestServerServesRequestsOverSocket(t *testing.T) {
	srv, id := newTestServer(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return Ping(id.SocketPath, 100*time.Millisecond) }, 2*time.Second, 20*time.Millisecond)

	conn, err := net.Dial("unix", id.SocketPath)
	require.NoError(t, err)

	enc := protocol.NewEncoder(conn)

	req := protocol.Request{
		Event: protocol.EventPreToolUse,
		HookInput: map[string]any{
			"tool_name":  "Bash",
			"tool_input": map[string]any{"command": "git reset --hard HEAD"},
		},
		RequestID: "r1",
	}
	require.NoError(t, enc.Encode(req))

	scanner := bufio.NewScanner(conn)
	require.True(t, scanner.Scan())
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	require.Equal(t, "r1", resp.RequestID)
	require.Equal(t, protocol.DecisionDeny, resp.Result.Decision)

	conn.Close()
	cancel()
	require.NoError(t, <-done)

	_, statErr := os.Stat(id.SocketPath)
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(id.PIDPath)
	require.True(t, os.IsNotExist(statErr))
}

// slowHandler never returns within any reasonable per-request timeout,
// letting a test exercise the handler_timeout error-response path.
type slowHandler struct{}

func (slowHandler) Name() string                 { return "slow" }
func (slowHandler) EventType() protocol.EventType { return protocol.EventPreToolUse }
func (slowHandler) Priority() int                 { return 1 }
func (slowHandler) Terminal() bool                { return false }
func (slowHandler) Matches(handler.Event) bool    { return true }
func (slowHandler) Handle(handler.Event) handler.Result {
	select {}
}

func TestServerRespondsWithHandlerTimeoutErrorOnSlowHandler(t *testing.T) {
	dir := t.TempDir()

	reg, err := handler.Build([]handler.Registered{{Handler: slowHandler{}, Enabled: true}})
	require.NoError(t, err)

	id := identity.Identity{
		ProjectRoot: dir,
		RuntimeDir:  dir,
		SocketPath:  filepath.Join(dir, "test.sock"),
		PIDPath:     filepath.Join(dir, "test.pid"),
	}
	cfg := config.Default()

	srv := &Server{
		Identity:       id,
		Config:         &cfg,
		Dispatcher:     dispatch.New(reg, session.New(), discardLogger()),
		Logger:         discardLogger(),
		RequestTimeout: 50 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	defer func() { cancel(); <-done }()

	require.Eventually(t, func() bool { return Ping(id.SocketPath, 100*time.Millisecond) }, 2*time.Second, 20*time.Millisecond)

	conn, err := net.Dial("unix", id.SocketPath)
	require.NoError(t, err)
	defer conn.Close()

	enc := protocol.NewEncoder(conn)
	req := protocol.Request{
		Event:     protocol.EventPreToolUse,
		HookInput: map[string]any{"tool_name": "Bash", "tool_input": map[string]any{"command": "echo hi"}},
		RequestID: "r1",
	}
	require.NoError(t, enc.Encode(req))

	scanner := bufio.NewScanner(conn)
	require.True(t, scanner.Scan())
	var resp protocol.ErrorResponse
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	require.Equal(t, protocol.ErrorHandlerTimeout, resp.Error)
	require.NotNil(t, resp.RequestID)
	require.Equal(t, "r1", *resp.RequestID)
}

// deadPID runs and waits out a trivial subprocess, then returns its
// pid: a value guaranteed not to name a live process (barring pid
// reuse, which the small, fast test window makes vanishingly unlikely).
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())
	return pid
}

func TestRecoverOrClaimReclaimsStalePIDFile(t *testing.T) {
	srv, id := newTestServer(t, 0)

	// A pid file naming a dead process, plus a leftover socket file from
	// that dead process's last run, is exactly the "stale state" spec
	// §4.7 step 2 / §8 P11 describes: startup must clean it up and claim
	// the socket for itself rather than refusing to start.
	require.NoError(t, os.WriteFile(id.PIDPath, []byte(strconv.Itoa(deadPID(t))), 0o600))
	require.NoError(t, os.WriteFile(id.SocketPath, []byte("not a real socket"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return Ping(id.SocketPath, 100*time.Millisecond) }, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunReturnsAlreadyRunningWhenLiveInstanceHoldsSocket(t *testing.T) {
	srv, id := newTestServer(t, 0)

	ln, err := net.Listen("unix", id.SocketPath)
	require.NoError(t, err)
	defer ln.Close()

	// A live socket plus a pid file naming this very test process (which
	// is, tautologically, alive) simulates "another instance already
	// owns this project" without needing to spawn a second real daemon.
	require.NoError(t, os.WriteFile(id.PIDPath, []byte(strconv.Itoa(os.Getpid())), 0o600))

	err = srv.Run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	_, statErr := os.Stat(id.PIDPath)
	require.NoError(t, statErr, "an already-running instance's pid file must not be removed")
}

func TestIdleTimeoutShutsDownDaemon(t *testing.T) {
	previous := idleCheckInterval
	idleCheckInterval = 50 * time.Millisecond
	defer func() { idleCheckInterval = previous }()

	srv, id := newTestServer(t, 1)

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()

	require.Eventually(t, func() bool { return Ping(id.SocketPath, 100*time.Millisecond) }, 2*time.Second, 20*time.Millisecond)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not shut down after idle timeout")
	}

	require.False(t, Ping(id.SocketPath, 100*time.Millisecond))
}
