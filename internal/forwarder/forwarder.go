// Package forwarder implements the thin client contract every
// per-event-type forwarder binary follows (spec §4.8): read a hook
// payload, make sure the daemon is running (starting it detached if
// not), send one framed request, relay the response, and fail open on
// any infrastructure problem so the assistant's tool call is never
// blocked by our own faults.
package forwarder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/cpi-si/claude-hooks-daemon/internal/daemonserver"
	"github.com/cpi-si/claude-hooks-daemon/internal/identity"
	"github.com/cpi-si/claude-hooks-daemon/internal/protocol"
)

// connectProbe is how long we wait for an existing socket to answer
// before assuming the daemon needs to be started (spec §4.8 step 2:
// "~2 s").
const connectProbe = 2 * time.Second

// startupWait bounds the whole lazy-start-then-poll sequence (spec
// §4.8 step 2: "bounded wait, e.g. 10 s, with exponential backoff").
const startupWait = 10 * time.Second

// Client relays one hook invocation to the project's daemon.
type Client struct {
	ProjectRoot  string
	DaemonBinary string // path to the binary that runs `claude-hooks-daemon start`
	Logger       func(format string, args ...any)
}

// Outcome is what a forwarder reports to the assistant: either a real
// dispatcher result, or a fail-open allow produced because
// infrastructure broke.
type Outcome struct {
	Result   protocol.Result
	FellOpen bool
}

// Forward sends one event to the daemon for projectRoot, starting it
// if necessary, and always returns a usable Outcome — on any failure
// it fails open with an allow decision rather than propagating an
// error the assistant would have to handle.
func (c *Client) Forward(ctx context.Context, eventType protocol.EventType, hookInput map[string]any, requestID string) Outcome {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	id, err := identity.Resolve(c.ProjectRoot)
	if err != nil {
		c.logf("resolving project identity: %v", err)
		return c.fallOpen()
	}

	socketPath, err := c.ensureDaemonRunning(ctx, id)
	if err != nil {
		c.logf("daemon unavailable: %v", err)
		return c.fallOpen()
	}

	result, err := sendRequest(socketPath, protocol.Request{
		Event:     eventType,
		HookInput: hookInput,
		RequestID: requestID,
	})
	if err != nil {
		c.logf("request failed: %v", err)
		return c.fallOpen()
	}

	return Outcome{Result: result}
}

func (c *Client) fallOpen() Outcome {
	return Outcome{Result: protocol.AllowResult(), FellOpen: true}
}

func (c *Client) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger(format, args...)
	}
}

// ensureDaemonRunning probes the socket; if nothing answers within
// connectProbe, it spawns the daemon detached and polls for the
// socket with bounded exponential backoff (spec §4.8 step 2).
func (c *Client) ensureDaemonRunning(ctx context.Context, id identity.Identity) (string, error) {
	socketPath, err := discoverySocketPath(id)
	if err != nil {
		return "", err
	}

	if daemonserver.Ping(socketPath, connectProbe) {
		return socketPath, nil
	}

	if err := c.spawnDaemon(id); err != nil {
		return "", fmt.Errorf("forwarder: spawning daemon: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 1 * time.Second
	bo.MaxElapsedTime = startupWait

	operation := func() error {
		if daemonserver.Ping(socketPath, 300*time.Millisecond) {
			return nil
		}
		return fmt.Errorf("daemon socket not yet accepting connections")
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return "", fmt.Errorf("forwarder: daemon did not come up within %s: %w", startupWait, err)
	}
	return socketPath, nil
}

// discoverySocketPath prefers the discovery file (written when the
// resolved runtime dir differs from the first candidate) over the
// locally-computed path, so a forwarder on an older build still finds
// a daemon whose runtime dir it would not itself have derived.
func discoverySocketPath(id identity.Identity) (string, error) {
	discoveryPath, err := identity.DiscoveryPath(id.ProjectRoot)
	if err != nil {
		return id.SocketPath, nil
	}
	data, err := os.ReadFile(discoveryPath)
	if err != nil {
		return id.SocketPath, nil
	}
	return string(data), nil
}

func (c *Client) spawnDaemon(id identity.Identity) error {
	binary := c.DaemonBinary
	if binary == "" {
		binary = "claude-hooks-daemon"
	}
	cmd := exec.Command(binary, "start", "--project-root", id.ProjectRoot, "--detach")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Start()
}

// sendRequest opens one connection, writes exactly one framed
// request, and reads exactly one framed response or error.
func sendRequest(socketPath string, req protocol.Request) (protocol.Result, error) {
	conn, err := net.DialTimeout("unix", socketPath, connectProbe)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	enc := protocol.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return protocol.Result{}, fmt.Errorf("write request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), protocol.MaxRequestBytes+1)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return protocol.Result{}, fmt.Errorf("read response: %w", err)
		}
		return protocol.Result{}, fmt.Errorf("read response: connection closed with no data")
	}

	// Response and ErrorResponse are distinct envelopes (spec §6); a
	// plain json.Unmarshal into Response would not error on an
	// ErrorResponse payload (missing fields aren't a decode failure),
	// so the envelope is chosen by peeking at which discriminating
	// field is present rather than by which Unmarshal happens to fail.
	var probe struct {
		Error protocol.ErrorKind `json:"error"`
	}
	if err := json.Unmarshal(scanner.Bytes(), &probe); err != nil {
		return protocol.Result{}, fmt.Errorf("decode response: %w", err)
	}
	if probe.Error != "" {
		return protocol.Result{}, fmt.Errorf("daemon error: %s", probe.Error)
	}

	var resp protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return protocol.Result{}, fmt.Errorf("decode response: %w", err)
	}
	return resp.Result, nil
}
