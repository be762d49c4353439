// Package session holds the daemon-wide cache of runtime facts
// extracted from status events: the single mutable singleton every
// handler may read but none may write. Writes happen exclusively from
// the dispatcher's status-event branch, always on the connection
// goroutine handling that request; reads happen from any number of
// concurrent request goroutines. We use an atomic pointer swap of an
// immutable value (spec Design Note 9's recommended strategy) so
// readers never block and never see a torn state.
package session

import (
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of session state. Handlers receive a
// Snapshot, never a mutable State, so they cannot retain a reference
// that later changes out from under them.
type Snapshot struct {
	ModelID               string
	ModelDisplayName      string
	ContextUsedPercentage float64
	WorkspaceDir          string
	LastUpdated           time.Time
}

// State is the process-wide singleton. The zero value is ready to use:
// Snapshot() returns an empty Snapshot until the first status event
// arrives.
type State struct {
	current atomic.Pointer[Snapshot]
}

// New constructs a State with an empty initial snapshot.
func New() *State {
	s := &State{}
	s.current.Store(&Snapshot{})
	return s
}

// Snapshot returns an immutable copy of the current state, safe to
// read concurrently with any in-flight UpdateFromStatus call.
func (s *State) Snapshot() Snapshot {
	current := s.current.Load()
	if current == nil {
		return Snapshot{}
	}
	return *current
}

// UpdateFromStatus replaces the current snapshot with one derived from
// a status-type event's hook_input. Unknown or missing fields leave
// the corresponding snapshot field at its zero value for this update —
// callers that want carry-forward semantics should read Snapshot()
// first and merge before calling, matching the teacher's
// graceful-degradation default of "use zero value, keep going" rather
// than erroring on a partial status payload.
//
// Confined to the dispatcher's single status-event branch: never call
// this from more than one goroutine at a time, or the last writer
// silently wins with no corruption but no defined ordering either.
func (s *State) UpdateFromStatus(hookInput map[string]any) {
	next := Snapshot{LastUpdated: time.Now()}

	if v, ok := hookInput["model_id"].(string); ok {
		next.ModelID = v
	}
	if v, ok := hookInput["model_display_name"].(string); ok {
		next.ModelDisplayName = v
	}
	if v, ok := hookInput["context_used_percentage"].(float64); ok {
		next.ContextUsedPercentage = v
	}
	if v, ok := hookInput["workspace_dir"].(string); ok {
		next.WorkspaceDir = v
	}

	s.current.Store(&next)
}
