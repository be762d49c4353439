// Package handler defines the handler capability contract and the
// registry that groups enabled handlers by event type in priority
// order. The dispatch algorithm itself lives in internal/dispatch;
// this package owns only the contract and the frozen-after-startup
// registry, grounded on the sequential-dispatch hook registry pattern
// retrieved from the pack (internal/hook.Registry in yunhoi129-moai-adk).
package handler

import (
	"sort"
	"strconv"

	"github.com/cpi-si/claude-hooks-daemon/internal/protocol"
	"github.com/cpi-si/claude-hooks-daemon/internal/session"
)

// Event is the record a handler inspects. hook_input is intentionally
// an opaque map: handlers must tolerate missing or malformed fields
// and return false/allow rather than panic (spec §4.5).
type Event struct {
	Type      protocol.EventType
	HookInput map[string]any
	RequestID string
	Session   session.Snapshot
}

// Result is what handle() returns for one event.
type Result struct {
	Decision protocol.Decision
	Reason   string
	Context  []string
}

// Allow is the zero-effort "no opinion" result.
func Allow() Result {
	return Result{Decision: protocol.DecisionAllow}
}

// Deny builds a denial with a reason.
func Deny(reason string) Result {
	return Result{Decision: protocol.DecisionDeny, Reason: reason}
}

// Ask builds an "ask" result, which behaves like deny for termination
// purposes but is preserved as its own tag in the response (spec §4.6
// step f, and Design Note 9's resolution of the ask-vs-deny open
// question).
func Ask(reason string) Result {
	return Result{Decision: protocol.DecisionAsk, Reason: reason}
}

// Handler is the capability every domain handler implements. matches
// must be cheap and side-effect free; handle may read session state
// but must not mutate shared state or retain event after it returns.
type Handler interface {
	// Name is a stable identifier, unique within this handler's event
	// type, matching ^[a-z][a-z0-9_]*$.
	Name() string
	// EventType is the single event this handler subscribes to.
	EventType() protocol.EventType
	// Priority orders handlers ascending within one event type;
	// smaller runs earlier. The registry enforces uniqueness within an
	// event type at build time.
	Priority() int
	// Terminal reports whether a deny from this handler stops dispatch
	// for the event.
	Terminal() bool
	// Matches is the cheap eligibility predicate.
	Matches(event Event) bool
	// Handle produces this handler's opinion on the event.
	Handle(event Event) Result
}

// Registered pairs a Handler with the config-level enabled flag, so
// the registry can build its per-event-type lists from exactly the
// handlers the operator turned on.
type Registered struct {
	Handler Handler
	Enabled bool
}

// Registry is the immutable-after-build set of enabled handlers,
// grouped by event type and sorted by ascending priority. It has no
// exported mutators; Build is the only way to produce one.
type Registry struct {
	byEvent map[protocol.EventType][]Handler
}

// DuplicatePriorityError reports two enabled handlers sharing a
// priority within one event type — a config-load-time failure per
// spec invariant P2, never a dispatch-time condition.
type DuplicatePriorityError struct {
	EventType protocol.EventType
	Priority  int
	First     string
	Second    string
}

func (e *DuplicatePriorityError) Error() string {
	return "handler: duplicate priority " + strconv.Itoa(e.Priority) + " for event " + string(e.EventType) +
		" between " + e.First + " and " + e.Second
}

// Build collects enabled handlers, validates priority uniqueness per
// event type, sorts ascending, and freezes the result. Handlers whose
// Enabled flag is false are dropped entirely — they never appear in
// HandlersFor, matching spec §4.5 "for each event type, collect
// enabled handlers".
func Build(registered []Registered) (*Registry, error) {
	byEvent := make(map[protocol.EventType][]Handler)
	for _, r := range registered {
		if !r.Enabled {
			continue
		}
		byEvent[r.Handler.EventType()] = append(byEvent[r.Handler.EventType()], r.Handler)
	}

	for et, handlers := range byEvent {
		sort.Slice(handlers, func(i, j int) bool {
			return handlers[i].Priority() < handlers[j].Priority()
		})
		for i := 1; i < len(handlers); i++ {
			if handlers[i].Priority() == handlers[i-1].Priority() {
				return nil, &DuplicatePriorityError{
					EventType: et,
					Priority:  handlers[i].Priority(),
					First:     handlers[i-1].Name(),
					Second:    handlers[i].Name(),
				}
			}
		}
		byEvent[et] = handlers
	}

	return &Registry{byEvent: byEvent}, nil
}

// HandlersFor returns the ordered, enabled handlers for et. The
// returned slice must not be mutated by callers; it is shared across
// all requests.
func (r *Registry) HandlersFor(et protocol.EventType) []Handler {
	return r.byEvent[et]
}

// All returns every (event type, handlers) pairing currently
// registered, used by generate-playbook to enumerate the live set.
func (r *Registry) All() map[protocol.EventType][]Handler {
	return r.byEvent
}
