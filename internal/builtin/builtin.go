// Package builtin provides the two reference handlers spec.md's §8
// worked scenarios exercise directly: a terminal safety handler that
// denies destructive shell commands, and a non-terminal advisory
// handler that flags American spellings. Both are grounded in the
// teacher's substring pattern-matching approach to dangerous-operation
// detection (hooks/lib/safety/detection.go) and advisory phrasing
// (hooks/lib/feedback/messages.go), with the same conservative bias:
// when uncertain, allow.
package builtin

import (
	"strings"

	"github.com/cpi-si/claude-hooks-daemon/internal/config"
	"github.com/cpi-si/claude-hooks-daemon/internal/handler"
	"github.com/cpi-si/claude-hooks-daemon/internal/protocol"
)

// dangerousCommandPatterns mirrors the teacher's fallback pattern set
// for IsDangerousOperation: a small, hand-picked list of substrings
// that are destructive enough to always warrant a denial, rather than
// an exhaustive or configurable pattern language.
var dangerousCommandPatterns = []string{
	"git push --force",
	"git push -f",
	"git reset --hard",
	"rm -rf",
	"sudo",
	"DROP DATABASE",
	"DROP TABLE",
}

// DestructiveGit denies Bash tool invocations whose command contains a
// known-destructive substring. It is terminal: a match stops dispatch
// so no later advisory handler appends unrelated context to a denied
// call (spec §8 scenario 3).
type DestructiveGit struct {
	name     string
	priority int
	patterns []string
}

// NewDestructiveGit builds the handler with the given priority, read
// from its config block's `priority` field. raw is the handler's
// passthrough config tail (spec.md:77); an `extra_patterns` list of
// strings, if present, is appended to the builtin pattern set rather
// than replacing it.
func NewDestructiveGit(priority int, raw map[string]any) *DestructiveGit {
	patterns := append([]string{}, dangerousCommandPatterns...)
	if extra, ok := raw["extra_patterns"].([]any); ok {
		for _, p := range extra {
			if s, ok := p.(string); ok {
				patterns = append(patterns, s)
			}
		}
	}
	return &DestructiveGit{name: "destructive_git", priority: priority, patterns: patterns}
}

func (h *DestructiveGit) Name() string                  { return h.name }
func (h *DestructiveGit) EventType() protocol.EventType { return protocol.EventPreToolUse }
func (h *DestructiveGit) Priority() int                 { return h.priority }
func (h *DestructiveGit) Terminal() bool                { return true }

func (h *DestructiveGit) Matches(event handler.Event) bool {
	toolName, _ := event.HookInput["tool_name"].(string)
	return toolName == "Bash"
}

func (h *DestructiveGit) Handle(event handler.Event) handler.Result {
	toolInput, _ := event.HookInput["tool_input"].(map[string]any)
	command, _ := toolInput["command"].(string)

	for _, pattern := range h.patterns {
		if strings.Contains(command, pattern) {
			return handler.Deny("destructive command detected: " + pattern)
		}
	}
	return handler.Allow()
}

// spellingCorrections is a small American → British spelling map,
// mirroring the teacher's feedback-messages style of short, literal
// advisory strings rather than a full linguistic pass.
var spellingCorrections = map[string]string{
	"color":    "colour",
	"favorite": "favourite",
	"behavior": "behaviour",
	"organize": "organise",
}

// BritishEnglish appends an advisory note when PreToolUse content
// contains an American spelling. It never denies.
type BritishEnglish struct {
	name        string
	priority    int
	corrections map[string]string
}

// NewBritishEnglish builds the handler with the given priority. raw is
// the handler's passthrough config tail (spec.md:77); a `corrections`
// map of American -> British spellings, if present, is merged over
// the builtin set (an operator-supplied spelling wins over the
// default for the same word).
func NewBritishEnglish(priority int, raw map[string]any) *BritishEnglish {
	corrections := make(map[string]string, len(spellingCorrections))
	for american, british := range spellingCorrections {
		corrections[american] = british
	}
	if extra, ok := raw["corrections"].(map[string]any); ok {
		for american, british := range extra {
			if s, ok := british.(string); ok {
				corrections[american] = s
			}
		}
	}
	return &BritishEnglish{name: "british_english", priority: priority, corrections: corrections}
}

func (h *BritishEnglish) Name() string                 { return h.name }
func (h *BritishEnglish) EventType() protocol.EventType { return protocol.EventPreToolUse }
func (h *BritishEnglish) Priority() int                 { return h.priority }
func (h *BritishEnglish) Terminal() bool                { return false }

func (h *BritishEnglish) Matches(event handler.Event) bool {
	_, hasContent := event.HookInput["content"]
	return hasContent
}

func (h *BritishEnglish) Handle(event handler.Event) handler.Result {
	content, _ := event.HookInput["content"].(string)

	var context []string
	for american, british := range h.corrections {
		if strings.Contains(content, american) {
			context = append(context, "American spelling detected: '"+american+"' → '"+british+"'")
		}
	}
	if len(context) == 0 {
		return handler.Allow()
	}
	return handler.Result{Decision: protocol.DecisionAllow, Context: context}
}

// constructors maps a builtin handler's config-file name to the
// factory that builds it from its priority and its passthrough config
// tail. Config entries naming a handler outside this set are silently
// skipped by BuildRegistry: an operator-authored config may reference
// third-party plugin handlers this binary does not itself provide, and
// that is not a load error.
var constructors = map[string]func(priority int, raw map[string]any) handler.Handler{
	"destructive_git": func(p int, raw map[string]any) handler.Handler { return NewDestructiveGit(p, raw) },
	"british_english": func(p int, raw map[string]any) handler.Handler { return NewBritishEnglish(p, raw) },
}

// BuildRegistry constructs every builtin handler named in cfg's
// handlers block and plugins list and assembles them into a
// handler.Registry, applying each entry's enabled/priority fields and
// threading its passthrough config tail through to the constructor. It
// is the daemon binary's default wiring; a deployment with its own
// compiled-in plugin handlers composes additional handler.Registered
// entries alongside this function's result before calling
// handler.Build itself.
func BuildRegistry(cfg *config.Config) (*handler.Registry, error) {
	var registered []handler.Registered
	for _, byName := range cfg.Handlers {
		for name, hc := range byName {
			ctor, ok := constructors[name]
			if !ok {
				continue
			}
			registered = append(registered, handler.Registered{
				Handler: ctor(hc.Priority, hc.Raw),
				Enabled: hc.Enabled,
			})
		}
	}
	for _, pc := range cfg.Plugins {
		ctor, ok := constructors[pc.Name]
		if !ok {
			continue
		}
		registered = append(registered, handler.Registered{
			Handler: ctor(pc.Priority, pc.Raw),
			Enabled: pc.Enabled,
		})
	}
	return handler.Build(registered)
}
