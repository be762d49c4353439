// Package daemonserver implements the daemon's socket listener,
// per-connection request loop, idle timer, signal handling, and
// graceful shutdown (spec §4.7). Each accepted connection is serviced
// on its own goroutine so a slow handler chain for one request never
// blocks another (spec §5 "parallel request handling"); the accept
// loop, idle timer, and signal watcher run under one golang.org/x/sync
// errgroup so cancelling Run's context tears down every background
// goroutine together.
package daemonserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cpi-si/claude-hooks-daemon/internal/config"
	"github.com/cpi-si/claude-hooks-daemon/internal/dispatch"
	"github.com/cpi-si/claude-hooks-daemon/internal/identity"
	"github.com/cpi-si/claude-hooks-daemon/internal/protocol"
	"github.com/cpi-si/claude-hooks-daemon/internal/validate"
)

// DefaultRequestTimeout is the per-request deadline spec §4.7 step 5
// names as a safety net, not a routine control.
const DefaultRequestTimeout = 60 * time.Second

// idleCheckInterval is how often the idle timer wakes to compare
// "now - last_activity" against the configured idle timeout (spec
// §4.7 "a background task wakes periodically, e.g. every 10 s").
// Declared as a var, not a const, so tests can shrink it instead of
// sleeping through a real 10 second tick.
var idleCheckInterval = 10 * time.Second

// gracePeriod bounds how long graceful shutdown waits for in-flight
// requests before forcing close.
const gracePeriod = 5 * time.Second

// ErrAlreadyRunning is returned by Run when another live instance
// already owns this project's socket; callers distinguish this from a
// startup failure (spec §6 CLI surface: `start` exits 1, not 2, when
// already running).
var ErrAlreadyRunning = errors.New("daemonserver: another instance is already serving this project")

// Server owns the socket file, the PID file, and (when the default
// socket path could not be used) the discovery file, for exactly one
// project.
type Server struct {
	Identity        identity.Identity
	Config          *config.Config
	Dispatcher      *dispatch.Dispatcher
	Logger          *slog.Logger
	RequestTimeout  time.Duration
	DiscoveryNeeded bool // true when Identity's runtime dir was not the first candidate

	listener     net.Listener
	lastActivity atomic.Int64 // unix nanos
	connWG       sync.WaitGroup
}

// Run performs the full startup sequence from spec §4.7 and then
// serves until ctx is cancelled or a termination signal arrives,
// performing graceful shutdown before returning.
func (s *Server) Run(ctx context.Context) error {
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}

	alreadyRunning, err := s.recoverOrClaim()
	if err != nil {
		return err
	}
	if alreadyRunning {
		s.Logger.Info("another instance is already serving", "socket", s.Identity.SocketPath)
		return ErrAlreadyRunning
	}

	if err := s.listen(); err != nil {
		return err
	}
	defer s.cleanupFiles()

	if err := s.writePIDFile(); err != nil {
		return fmt.Errorf("daemonserver: writing pid file: %w", err)
	}

	if s.DiscoveryNeeded {
		if err := s.writeDiscoveryFile(); err != nil {
			s.Logger.Warn("failed to write socket discovery file", "error", err.Error())
		}
	}

	s.touchActivity()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return s.acceptLoop(groupCtx) })
	group.Go(func() error { return s.idleTimer(groupCtx) })
	group.Go(func() error { return s.signalWatcher(groupCtx, cancel) })

	err = group.Wait()
	s.drain()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// recoverOrClaim implements spec §4.7 step 2: if a pid file exists and
// names a live process whose socket answers a ping, another instance
// already owns this project and we should exit cleanly. Otherwise any
// stale pid/socket files are removed and startup proceeds.
func (s *Server) recoverOrClaim() (alreadyRunning bool, err error) {
	data, readErr := os.ReadFile(s.Identity.PIDPath)
	if readErr != nil {
		return false, nil // no pid file: nothing stale to clean up
	}

	pid, parseErr := strconv.Atoi(string(data))
	if parseErr == nil && processIsAlive(pid) && Ping(s.Identity.SocketPath, 500*time.Millisecond) {
		return true, nil
	}

	s.Logger.Info("removing stale daemon state", "pid_file", s.Identity.PIDPath)
	_ = os.Remove(s.Identity.PIDPath)
	_ = os.Remove(s.Identity.SocketPath)
	return false, nil
}

func processIsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes liveness
	// without actually signalling the process.
	return proc.Signal(syscall.Signal(0)) == nil
}

// listen creates the socket (removing any leftover file), binds,
// and restricts permissions to the owning user only, matching the
// "filesystem permissions suffice" non-goal in spec §1.
func (s *Server) listen() error {
	if err := os.MkdirAll(s.Identity.RuntimeDir, 0o700); err != nil {
		return fmt.Errorf("daemonserver: creating runtime dir: %w", err)
	}
	_ = os.Remove(s.Identity.SocketPath)

	ln, err := net.Listen("unix", s.Identity.SocketPath)
	if err != nil {
		return fmt.Errorf("daemonserver: bind %s: %w", s.Identity.SocketPath, err)
	}
	if err := os.Chmod(s.Identity.SocketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("daemonserver: chmod socket: %w", err)
	}

	s.listener = ln
	return nil
}

func (s *Server) writePIDFile() error {
	return os.WriteFile(s.Identity.PIDPath, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (s *Server) writeDiscoveryFile() error {
	path, err := identity.DiscoveryPath(s.Identity.ProjectRoot)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(s.Identity.SocketPath), 0o600)
}

func (s *Server) cleanupFiles() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	_ = os.Remove(s.Identity.SocketPath)
	_ = os.Remove(s.Identity.PIDPath)
	if s.DiscoveryNeeded {
		if path, err := identity.DiscoveryPath(s.Identity.ProjectRoot); err == nil {
			_ = os.Remove(path)
		}
	}
}

func (s *Server) touchActivity() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Server) idleSeconds() float64 {
	last := time.Unix(0, s.lastActivity.Load())
	return time.Since(last).Seconds()
}

// acceptLoop accepts connections and spawns one goroutine per
// connection until ctx is cancelled, at which point it stops accepting
// and returns so the errgroup can proceed to shutdown.
func (s *Server) acceptLoop(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			return fmt.Errorf("daemonserver: accept: %w", err)
		}

		if !peerAuthorized(conn) {
			s.Logger.Warn("rejected connection from unauthorized peer")
			_ = conn.Close()
			continue
		}

		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// idleTimer initiates shutdown once the server has gone idleTimeout
// without request activity, meaning no request received or answered
// (spec §4.7 "idle timeout", invariant P10).
func (s *Server) idleTimer(ctx context.Context) error {
	timeout := time.Duration(s.Config.Daemon.IdleTimeoutSeconds) * time.Second
	if timeout <= 0 {
		<-ctx.Done()
		return context.Canceled
	}

	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
			if time.Duration(s.idleSeconds()*float64(time.Second)) > timeout {
				s.Logger.Info("idle timeout reached, shutting down", "idle_timeout_seconds", s.Config.Daemon.IdleTimeoutSeconds)
				return context.Canceled
			}
		}
	}
}

// signalWatcher installs interrupt/terminate handlers. A second
// identical signal forces immediate exit, bypassing graceful drain.
func (s *Server) signalWatcher(ctx context.Context, cancel context.CancelFunc) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var first os.Signal
	select {
	case <-ctx.Done():
		return context.Canceled
	case first = <-sigCh:
		s.Logger.Info("received signal, starting graceful shutdown", "signal", first.String())
		cancel()
	}

	deadline := time.After(gracePeriod)
	for {
		select {
		case sig := <-sigCh:
			if sig == first {
				s.Logger.Warn("received second signal, forcing immediate exit")
				os.Exit(1)
			}
		case <-deadline:
			return context.Canceled
		}
	}
}

// drain waits up to gracePeriod for in-flight connections to finish.
func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(gracePeriod):
		s.Logger.Warn("grace period elapsed with connections still in flight")
	}
}

// serveConn implements the per-connection request loop from spec
// §4.7 steps 1-7: one request per connection.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	decoder := protocol.NewDecoder(conn)
	encoder := protocol.NewEncoder(conn)

	req, err := decoder.DecodeRequest()
	s.touchActivity()
	if err != nil {
		s.respondDecodeError(encoder, err)
		return
	}

	logger := s.Logger.With("event_type", string(req.Event), "request_id", req.RequestID)

	if !protocol.IsValidEventType(req.Event) {
		_ = encoder.Encode(protocol.ErrorResponse{
			RequestID: &req.RequestID,
			Error:     protocol.ErrorInternal,
			Details:   []string{fmt.Sprintf("unknown event type %q", req.Event)},
			EventType: nil,
		})
		return
	}

	if mode := validationMode(s.Config); mode != validate.ModeDisabled {
		problems := validate.Validate(req.Event, req.HookInput)
		if len(problems) > 0 {
			if mode == validate.ModeFailClosed {
				evt := req.Event
				_ = encoder.Encode(protocol.ErrorResponse{
					RequestID: &req.RequestID,
					Error:     protocol.ErrorInputValidationFailed,
					Details:   problems,
					EventType: &evt,
				})
				return
			}
			logger.Warn("input validation failed, proceeding fail-open", "problems", problems)
		}
	}

	start := time.Now()
	resultCh := make(chan protocol.Result, 1)
	go func() {
		resultCh <- s.Dispatcher.Dispatch(req.Event, req.HookInput, req.RequestID)
	}()

	var result protocol.Result
	select {
	case result = <-resultCh:
	case <-time.After(s.RequestTimeout):
		logger.Error("handler chain exceeded request timeout")
		// Dispatch is orphaned, not cancelled: handlers must be short by
		// construction, and the timeout is a safety net (spec §5), so the
		// abandoned goroutine is left to finish into a channel nobody reads.
		evt := req.Event
		_ = encoder.Encode(protocol.ErrorResponse{
			RequestID: &req.RequestID,
			Error:     protocol.ErrorHandlerTimeout,
			EventType: &evt,
		})
		return
	case <-ctx.Done():
		return
	}

	s.touchActivity()
	if err := encoder.Encode(protocol.Response{
		RequestID: req.RequestID,
		Result:    result,
		TimingMS:  float64(time.Since(start).Milliseconds()),
	}); err != nil {
		logger.Warn("socket write failed, abandoning request", "error", err.Error())
	}
}

func (s *Server) respondDecodeError(enc *protocol.Encoder, err error) {
	if errors.Is(err, protocol.ErrRequestTooLarge) {
		_ = enc.Encode(protocol.ErrorResponse{RequestID: nil, Error: protocol.ErrorRequestTooLarge})
		return
	}
	// io.EOF means the forwarder closed without sending anything;
	// nothing to report to a peer that already went away.
	if errors.Is(err, io.EOF) {
		return
	}
	_ = enc.Encode(protocol.ErrorResponse{RequestID: nil, Error: protocol.ErrorInvalidJSON})
}

func validationMode(cfg *config.Config) validate.Mode {
	if !cfg.Daemon.InputValidation.Enabled {
		return validate.ModeDisabled
	}
	if cfg.Daemon.InputValidation.StrictMode {
		return validate.ModeFailClosed
	}
	return validate.ModeFailOpen
}

// Ping dials socketPath with a short timeout to check whether a daemon
// is already listening and accepting connections. Used both by
// startup's stale-pid recovery and by the forwarder's lazy-start
// check (spec §4.8 step 2).
func Ping(socketPath string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

