// Package dispatch implements the front controller: for one event,
// select the matching handlers for its event type, run them in
// priority order, apply terminal/non-terminal denial semantics,
// accumulate advisory context, and recover from handler failures so a
// broken handler never blocks the tool call it was meant to police
// (spec §4.6, fail-open discipline from §7).
package dispatch

import (
	"log/slog"

	"github.com/cpi-si/claude-hooks-daemon/internal/handler"
	"github.com/cpi-si/claude-hooks-daemon/internal/protocol"
	"github.com/cpi-si/claude-hooks-daemon/internal/session"
)

// Dispatcher runs the handler chain for one event against a registry
// and a shared session state.
type Dispatcher struct {
	registry *handler.Registry
	session  *session.State
	logger   *slog.Logger
}

// New builds a Dispatcher over registry and session state.
func New(registry *handler.Registry, sessionState *session.State, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, session: sessionState, logger: logger}
}

// Dispatch runs the algorithm in spec §4.6 for one request and returns
// the aggregated result.
func (d *Dispatcher) Dispatch(eventType protocol.EventType, hookInput map[string]any, requestID string) protocol.Result {
	// Step 2: status events update session state before dispatch, so
	// even this event observes the fresh snapshot.
	if protocol.IsStatusEvent(eventType) {
		d.session.UpdateFromStatus(hookInput)
	}

	// Step 1: take the snapshot after any update above.
	snapshot := d.session.Snapshot()

	handlers := d.registry.HandlersFor(eventType)
	if len(handlers) == 0 {
		return protocol.AllowResult()
	}

	event := handler.Event{
		Type:      eventType,
		HookInput: hookInput,
		RequestID: requestID,
		Session:   snapshot,
	}

	accumulatedContext := make([]string, 0)
	currentDecision := protocol.DecisionAllow
	var currentReason string

	for _, h := range handlers {
		matched := d.safeMatches(h, event)
		if !matched {
			continue
		}

		result := d.safeHandle(h, event)

		if len(result.Context) > 0 {
			accumulatedContext = append(accumulatedContext, result.Context...)
		}

		switch result.Decision {
		case protocol.DecisionDeny, protocol.DecisionAsk:
			// Ask behaves identically to deny for termination purposes
			// but its own tag is preserved in the aggregated result
			// (spec §4.6 step f, Design Note 9's resolution of the
			// ask-vs-deny open question).
			currentDecision = result.Decision
			currentReason = result.Reason
			if h.Terminal() {
				return finalize(currentDecision, currentReason, accumulatedContext)
			}
		case protocol.DecisionAllow:
			// continue
		}
	}

	return finalize(currentDecision, currentReason, accumulatedContext)
}

func finalize(decision protocol.Decision, reason string, context []string) protocol.Result {
	r := protocol.Result{Decision: decision, Context: context}
	if reason != "" {
		r.Reason = &reason
	}
	return r
}

// safeMatches guards Matches against panics: a panicking predicate is
// treated as "did not match" and logged, never propagated.
func (d *Dispatcher) safeMatches(h handler.Handler, event handler.Event) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			d.logger.Error("handler matches panicked",
				"handler", h.Name(), "event_type", string(event.Type), "panic", r)
		}
	}()
	return h.Matches(event)
}

// safeHandle guards Handle against panics: a panicking handler is
// treated as an allow with empty context and logged, never propagated.
func (d *Dispatcher) safeHandle(h handler.Handler, event handler.Event) (result handler.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = handler.Allow()
			d.logger.Error("handler handle panicked",
				"handler", h.Name(), "event_type", string(event.Type), "panic", r)
		}
	}()
	return h.Handle(event)
}
