// Package validate owns the per-event-type input schemas and the
// three behavior modes spec §4.3 describes: disabled, fail-open
// (the default — log and proceed), and fail-closed/strict (surface an
// input_validation_failed error and skip dispatch). Validators are
// compiled once per event type and cached; validate() itself stays a
// pure function of (event type, hook_input), satisfying invariant P9.
package validate

import (
	"fmt"
	"sync"

	"github.com/cpi-si/claude-hooks-daemon/internal/protocol"
)

// Mode selects how a validation failure is handled.
type Mode int

const (
	// ModeDisabled skips validation entirely.
	ModeDisabled Mode = iota
	// ModeFailOpen runs validation; failures are logged and dispatch
	// proceeds anyway. This is the default.
	ModeFailOpen
	// ModeFailClosed (strict) aborts dispatch and surfaces every
	// validation error to the forwarder.
	ModeFailClosed
)

// schema is a compiled requirement set for one event type: the keys
// that must be present in hook_input (e.g. PostToolUse additionally
// requires tool_response). The check that tool_input is itself a map
// for PreToolUse/PostToolUse is applied in Validate, not stored here.
type schema struct {
	requiredKeys []string
}

var (
	once      sync.Once
	schemasBy map[protocol.EventType]schema
)

func compile() {
	schemasBy = map[protocol.EventType]schema{
		protocol.EventPreToolUse:        {requiredKeys: []string{"tool_name", "tool_input"}},
		protocol.EventPostToolUse:       {requiredKeys: []string{"tool_name", "tool_input", "tool_response"}},
		protocol.EventSessionStart:      {requiredKeys: []string{}},
		protocol.EventSessionEnd:        {requiredKeys: []string{}},
		protocol.EventStop:              {requiredKeys: []string{}},
		protocol.EventSubagentStop:      {requiredKeys: []string{}},
		protocol.EventPreCompact:        {requiredKeys: []string{}},
		protocol.EventUserPromptSubmit:  {requiredKeys: []string{"prompt"}},
		protocol.EventPermissionRequest: {requiredKeys: []string{"tool_name"}},
		protocol.EventNotification:      {requiredKeys: []string{"message"}},
		protocol.EventStatus:            {requiredKeys: []string{}},
	}
}

// schemaFor returns the compiled schema for et, compiling the whole
// set on first use.
func schemaFor(et protocol.EventType) (schema, bool) {
	once.Do(compile)
	s, ok := schemasBy[et]
	return s, ok
}

// Validate returns every problem found with hookInput for et — never
// just the first — so a strict-mode caller can report the complete
// list in one response (spec §4.2's "exhaustive, not first-error-only"
// discipline, reused here for input validation).
func Validate(et protocol.EventType, hookInput map[string]any) []string {
	s, ok := schemaFor(et)
	if !ok {
		return []string{fmt.Sprintf("unknown event type: %s", et)}
	}

	var problems []string
	for _, key := range s.requiredKeys {
		if _, present := hookInput[key]; !present {
			problems = append(problems, fmt.Sprintf("%s: required field missing", key))
		}
	}

	if et == protocol.EventPreToolUse || et == protocol.EventPostToolUse {
		if v, present := hookInput["tool_input"]; present {
			if _, isMap := v.(map[string]any); !isMap {
				problems = append(problems, "tool_input: must be an object")
			}
		}
	}

	return problems
}
