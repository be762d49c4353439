// Command claude-hook-forward is the thin per-event-type script
// Claude Code invokes at each hook lifecycle point. A single binary
// serves every EventType; the event is selected via the -event flag or
// the CLAUDE_HOOK_EVENT environment variable, not by the name the
// binary is invoked under. It reads the raw hook payload as JSON on
// stdin, relays it to the project's daemon, and writes the resulting
// decision as JSON on stdout. It never blocks the assistant's tool
// call on an infrastructure failure: every error path falls open.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/cpi-si/claude-hooks-daemon/internal/forwarder"
	"github.com/cpi-si/claude-hooks-daemon/internal/protocol"
)

// outcome is the stdout contract the assistant consumes: a denial
// carries reason text, an allow may carry advisory context.
type outcome struct {
	Decision string   `json:"decision"`
	Reason   *string  `json:"reason,omitempty"`
	Context  []string `json:"context,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("claude-hook-forward", flag.ContinueOnError)
	fs.SetOutput(stderr)
	event := fs.String("event", os.Getenv("CLAUDE_HOOK_EVENT"), "hook event type (overrides CLAUDE_HOOK_EVENT)")
	projectRoot := fs.String("project-root", "", "project root (defaults to the current working directory)")
	requestID := fs.String("request-id", "", "request id to echo (generated if empty)")
	if err := fs.Parse(args); err != nil {
		writeFallbackAllow(stdout)
		return 0
	}

	eventType := protocol.EventType(*event)
	if !protocol.IsValidEventType(eventType) {
		fmt.Fprintf(stderr, "claude-hook-forward: unknown event type %q\n", *event)
		writeFallbackAllow(stdout)
		return 0
	}

	root := *projectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(stderr, "claude-hook-forward: resolving working directory: %v\n", err)
			writeFallbackAllow(stdout)
			return 0
		}
		root = wd
	}

	hookInput, err := readHookInput(stdin)
	if err != nil {
		fmt.Fprintf(stderr, "claude-hook-forward: decoding hook payload: %v\n", err)
		writeFallbackAllow(stdout)
		return 0
	}

	logger := log.New(stderr, "claude-hook-forward: ", log.LstdFlags)
	client := &forwarder.Client{
		ProjectRoot: root,
		Logger:      func(format string, a ...any) { logger.Printf(format, a...) },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result := client.Forward(ctx, eventType, hookInput, *requestID)
	writeOutcome(stdout, result.Result)
	return 0
}

// readHookInput tolerates an empty stdin (some event types carry no
// payload) by treating it as an empty object rather than an error.
func readHookInput(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var hookInput map[string]any
	if err := json.Unmarshal(data, &hookInput); err != nil {
		return nil, err
	}
	return hookInput, nil
}

func writeOutcome(w io.Writer, result protocol.Result) {
	out := outcome{Decision: string(result.Decision), Reason: result.Reason, Context: result.Context}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "claude-hook-forward: encoding outcome: %v\n", err)
	}
}

// writeFallbackAllow is used on the handful of failure paths that
// happen before a forwarder.Client even exists (bad flags, unreadable
// stdin) — Client.Forward already fails open for everything past
// that point.
func writeFallbackAllow(w io.Writer) {
	writeOutcome(w, protocol.AllowResult())
}
