// Package logging provides the daemon's rails logger: a component
// obtains a component-tagged logger from For, logging failures
// degrade to stderr instead of interrupting the work
// they describe, and structured fields (event type, request id,
// handler name) are attached consistently so entries can be correlated
// across a request's lifetime.
//
// This is a deliberately thin wrapper over log/slog — the teacher's own
// rails logger (system/runtime/lib/logging) hand-rolls entry formatting,
// health scoring, and file rotation; none of that machinery is needed
// here, but the "rails, not a dependency" philosophy and the
// never-block-on-logging-failure discipline both carry over.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Level mirrors spec.md's daemon.log_level config values.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	mu      sync.Mutex
	sink    io.Writer = os.Stderr
	minimum Level     = LevelInfo
)

// Configure points every future logger at logPath (falling back to
// stderr if it cannot be opened, with a warning, since logging must
// never stop the daemon) and sets the minimum level. Call once during
// daemon startup; safe to call again on an explicit config reload.
func Configure(logPath string, level Level) {
	mu.Lock()
	defer mu.Unlock()
	minimum = level
	if logPath == "" {
		sink = os.Stderr
		return
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		sink = os.Stderr
		slog.Default().Warn("logging: falling back to stderr", "path", logPath, "error", err.Error())
		return
	}
	sink = f
}

// For returns a component-scoped logger. The daemon binary calls it
// once at startup and hands the result to the dispatcher and server.
func For(component string) *slog.Logger {
	mu.Lock()
	w, lvl := sink, minimum
	mu.Unlock()
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl.slogLevel()})
	return slog.New(handler).With("component", component)
}

// ForRequest attaches event/request-scoped fields on top of a
// component logger, so every log line emitted while handling one event
// can be correlated back to it.
func ForRequest(base *slog.Logger, eventType, requestID string) *slog.Logger {
	return base.With("event_type", eventType, "request_id", requestID)
}
