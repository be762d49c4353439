package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/cpi-si/claude-hooks-daemon/internal/builtin"
	"github.com/cpi-si/claude-hooks-daemon/internal/daemonserver"
	"github.com/cpi-si/claude-hooks-daemon/internal/dispatch"
	"github.com/cpi-si/claude-hooks-daemon/internal/identity"
	"github.com/cpi-si/claude-hooks-daemon/internal/logging"
	"github.com/cpi-si/claude-hooks-daemon/internal/session"
)

func cmdStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	root := fs.String("project-root", "", "project root")
	configPath := fs.String("config", "", "config file path (defaults to <project-root>/"+configRelPath+")")
	detach := fs.Bool("detach", false, "run the daemon as a detached background process")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	projectRoot, err := resolveProjectRoot(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *configPath == "" {
		*configPath = defaultConfigPath(projectRoot)
	}

	if *detach {
		return startDetached(projectRoot, *configPath)
	}
	return startForeground(projectRoot, *configPath)
}

func startDetached(projectRoot, configPath string) int {
	id, err := projectIdentity(projectRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon:", err)
		return 2
	}
	if _, ok := readLivePID(id); ok {
		fmt.Fprintln(os.Stderr, "already running")
		return 1
	}

	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon:", err)
		return 2
	}
	cmd := exec.Command(self, "start", "--project-root", projectRoot, "--config", configPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon:", err)
		return 2
	}
	defer devnull.Close()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull
	if err := cmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon: spawning detached daemon:", err)
		return 2
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if daemonserver.Ping(id.SocketPath, 200*time.Millisecond) {
			return 0
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(os.Stderr, "claude-hooks-daemon: daemon did not come up in time")
	return 2
}

func startForeground(projectRoot, configPath string) int {
	cfg, errs := loadOrDefaultConfig(configPath)
	if len(errs) > 0 {
		printConfigErrors(os.Stderr, errs)
		return 2
	}

	id, err := projectIdentity(projectRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon:", err)
		return 2
	}

	logging.Configure(logPath(id), logging.Level(cfg.Daemon.LogLevel))
	logger := logging.For("daemon")

	reg, err := builtin.BuildRegistry(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon: config_error:", err)
		return 2
	}

	srv := &daemonserver.Server{
		Identity:        id,
		Config:          cfg,
		Dispatcher:      dispatch.New(reg, session.New(), logger),
		Logger:          logger,
		DiscoveryNeeded: id.RuntimeDir != firstRuntimeDirCandidate(),
	}

	if err := srv.Run(context.Background()); err != nil {
		if errors.Is(err, daemonserver.ErrAlreadyRunning) {
			fmt.Fprintln(os.Stderr, "already running")
			return 1
		}
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon:", err)
		return 2
	}
	return 0
}

// firstRuntimeDirCandidate mirrors identity's own first-choice runtime
// directory so the CLI can tell whether the resolved identity fell
// back, without identity exposing its candidate list directly.
func firstRuntimeDirCandidate() string {
	id, err := identity.Resolve("/")
	if err != nil {
		return ""
	}
	return id.RuntimeDir
}

func cmdStop(args []string) int {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	root := fs.String("project-root", "", "project root")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	projectRoot, err := resolveProjectRoot(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	id, err := projectIdentity(projectRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon:", err)
		return 2
	}

	pid, ok := readLivePID(id)
	if !ok {
		fmt.Println("not running")
		return 1
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		fmt.Println("not running")
		return 1
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		fmt.Println("not running")
		return 1
	}

	fmt.Printf("stopping (pid %d)\n", pid)
	return 0
}

func cmdStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	root := fs.String("project-root", "", "project root")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	projectRoot, err := resolveProjectRoot(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	id, err := projectIdentity(projectRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon:", err)
		return 2
	}

	pid, ok := readLivePID(id)
	if !ok {
		fmt.Println("not running")
		return 1
	}
	fmt.Printf("running (pid %d, socket %s)\n", pid, id.SocketPath)
	return 0
}

func cmdRestart(args []string) int {
	fs := flag.NewFlagSet("restart", flag.ContinueOnError)
	root := fs.String("project-root", "", "project root")
	configPath := fs.String("config", "", "config file path")
	detach := fs.Bool("detach", false, "run the daemon as a detached background process")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	stopArgs := []string{}
	if *root != "" {
		stopArgs = append(stopArgs, "--project-root", *root)
	}
	if code := cmdStop(stopArgs); code == 0 {
		waitForStop(*root)
	}

	startArgs := []string{}
	if *root != "" {
		startArgs = append(startArgs, "--project-root", *root)
	}
	if *configPath != "" {
		startArgs = append(startArgs, "--config", *configPath)
	}
	if *detach {
		startArgs = append(startArgs, "--detach")
	}
	return cmdStart(startArgs)
}

// waitForStop gives a just-signalled daemon a brief window to release
// its pid file before restart tries to start a new one.
func waitForStop(root string) {
	projectRoot, err := resolveProjectRoot(root)
	if err != nil {
		return
	}
	id, err := projectIdentity(projectRoot)
	if err != nil {
		return
	}
	deadline := time.Now().Add(6 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := readLivePID(id); !ok {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// readLivePID reports the daemon's pid if its pid file names a live
// process that also answers a socket ping; a stale pid file reads as
// not-running rather than a false positive.
func readLivePID(id identity.Identity) (int, bool) {
	data, err := os.ReadFile(id.PIDPath)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if proc.Signal(syscall.Signal(0)) != nil {
		return 0, false
	}
	if !daemonserver.Ping(id.SocketPath, 500*time.Millisecond) {
		return 0, false
	}
	return pid, true
}
