// Package config loads and validates the daemon's configuration file
// (spec.md §6: `.claude/hooks-daemon.yaml`). Validation is exhaustive —
// every problem is collected and returned, never just the first — so a
// config error at daemon start can report a complete list (spec §4.2,
// §7 "config_error ... fatal at startup with a message listing every
// error"). Handler-specific option fields are passed through unchanged
// as a raw YAML tail; this package never tries to type every handler's
// options, per Design Note 9.
package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cpi-si/claude-hooks-daemon/internal/logging"
	"github.com/cpi-si/claude-hooks-daemon/internal/protocol"
)

// SupportedVersion is the only config schema version this binary
// accepts. A mismatch is a version_mismatch error.
const SupportedVersion = "1.0"

var handlerNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

const (
	minPriority = 5
	maxPriority = 60
)

// ErrorCategory is the closed set of config problem kinds spec §4.2
// names.
type ErrorCategory string

const (
	CategoryUnknownEventType  ErrorCategory = "unknown_event_type"
	CategoryInvalidName       ErrorCategory = "invalid_handler_name"
	CategoryPriorityRange     ErrorCategory = "priority_out_of_range"
	CategoryDuplicatePriority ErrorCategory = "duplicate_priority"
	CategoryTypeMismatch      ErrorCategory = "type_mismatch"
	CategoryUnknownLogLevel   ErrorCategory = "unknown_log_level"
	CategoryVersionMismatch   ErrorCategory = "version_mismatch"
	CategoryUnknownTopLevelKey ErrorCategory = "unknown_top_level_key"
)

// knownTopLevelKeys are the only keys spec.md's config schema (§6)
// permits at the document root. Unlike a handler's own config block,
// where unknown keys are a forward-compatible passthrough tail,
// unknown keys here are a config_error (spec.md:77).
var knownTopLevelKeys = map[string]bool{
	"version":  true,
	"daemon":   true,
	"handlers": true,
	"plugins":  true,
}

// Error is one validation problem, tagged with its category so callers
// (validate-config, startup) can report or group them.
type Error struct {
	Category ErrorCategory
	Message  string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// InputValidation is the daemon.input_validation config block.
type InputValidation struct {
	Enabled             bool `yaml:"enabled"`
	StrictMode          bool `yaml:"strict_mode"`
	LogValidationErrors bool `yaml:"log_validation_errors"`
}

// Daemon is the daemon.* config block.
type Daemon struct {
	IdleTimeoutSeconds int             `yaml:"idle_timeout_seconds"`
	LogLevel           string          `yaml:"log_level"`
	InputValidation    InputValidation `yaml:"input_validation"`
}

// HandlerConfig is one entry under handlers.<event_type>.<name>. Raw
// carries every field this package does not know about, passed
// through unchanged to the handler that owns it.
type HandlerConfig struct {
	Enabled  bool
	Priority int
	Raw      map[string]any
}

// rawHandlerConfig is the YAML-facing shape used to decode the known
// fields; decodeRawTail separately decodes the same node into a map
// to recover the passthrough tail.
type rawHandlerConfig struct {
	Enabled  bool `yaml:"enabled"`
	Priority int  `yaml:"priority"`
}

// rawPluginConfig is the YAML-facing shape of one `plugins` list entry
// (spec.md:258, "same schema applies" as a handlers entry, but flat:
// event_type and name are fields of the entry instead of map keys).
type rawPluginConfig struct {
	EventType protocol.EventType `yaml:"event_type"`
	Name      string             `yaml:"name"`
	Enabled   bool               `yaml:"enabled"`
	Priority  int                `yaml:"priority"`
}

// rawDocument mirrors the top-level YAML shape for decoding.
type rawDocument struct {
	Version  string                                       `yaml:"version"`
	Daemon   Daemon                                        `yaml:"daemon"`
	Handlers map[protocol.EventType]map[string]yaml.Node  `yaml:"handlers"`
	Plugins  []yaml.Node                                  `yaml:"plugins"`
}

// PluginConfig is one entry from the top-level `plugins` list: a
// project-level handler extending the builtin set (Design Note 9,
// "Plugin handlers"), validated identically to a handlers entry but
// naming its own event type and handler name as fields.
type PluginConfig struct {
	EventType protocol.EventType
	Name      string
	Enabled   bool
	Priority  int
	Raw       map[string]any
}

// Config is the validated, typed configuration the daemon runs with.
type Config struct {
	Version  string
	Daemon   Daemon
	Handlers map[protocol.EventType]map[string]HandlerConfig
	Plugins  []PluginConfig
}

// Load reads path, parses it as YAML, applies environment overrides,
// validates, and returns either a usable Config or the complete list
// of validation errors (never a partial Config alongside errors).
func Load(path string) (*Config, []Error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []Error{{Category: CategoryTypeMismatch, Message: fmt.Sprintf("reading %s: %v", path, err)}}
	}
	return Parse(data)
}

// Parse validates and decodes raw YAML bytes, applying environment
// variable overrides from HOOKS_DAEMON_INPUT_VALIDATION and
// HOOKS_DAEMON_VALIDATION_STRICT before validation runs.
func Parse(data []byte) (*Config, []Error) {
	var errs []Error

	errs = append(errs, checkUnknownTopLevelKeys(data)...)

	var doc rawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, []Error{{Category: CategoryTypeMismatch, Message: fmt.Sprintf("parsing yaml: %v", err)}}
	}

	applyEnvOverrides(&doc.Daemon)

	if doc.Version != SupportedVersion {
		errs = append(errs, Error{Category: CategoryVersionMismatch,
			Message: fmt.Sprintf("config version %q does not match supported %q", doc.Version, SupportedVersion)})
	}

	if !isKnownLogLevel(doc.Daemon.LogLevel) {
		errs = append(errs, Error{Category: CategoryUnknownLogLevel,
			Message: fmt.Sprintf("unknown log level %q", doc.Daemon.LogLevel)})
	}

	// priorities tracks claimed priorities per event type across both
	// handlers and plugins: the two sources feed the same per-event-type
	// registry namespace, so a plugin and a builtin handler sharing a
	// priority is exactly as invalid as two builtin handlers sharing one.
	priorities := make(map[protocol.EventType]map[int]string)
	claimPriority := func(et protocol.EventType, name string, priority int) *Error {
		if priorities[et] == nil {
			priorities[et] = make(map[int]string)
		}
		if other, exists := priorities[et][priority]; exists {
			return &Error{Category: CategoryDuplicatePriority,
				Message: fmt.Sprintf("handlers %q and %q share priority %d for event %q", other, name, priority, et)}
		}
		priorities[et][priority] = name
		return nil
	}

	handlers := make(map[protocol.EventType]map[string]HandlerConfig)
	for et, byName := range doc.Handlers {
		if !protocol.IsValidEventType(et) {
			errs = append(errs, Error{Category: CategoryUnknownEventType,
				Message: fmt.Sprintf("unknown event type %q", et)})
			continue
		}
		handlers[et] = make(map[string]HandlerConfig)
		for name, node := range byName {
			if !handlerNamePattern.MatchString(name) {
				errs = append(errs, Error{Category: CategoryInvalidName,
					Message: fmt.Sprintf("invalid handler name %q for event %q", name, et)})
				continue
			}

			var hc rawHandlerConfig
			if err := node.Decode(&hc); err != nil {
				errs = append(errs, Error{Category: CategoryTypeMismatch,
					Message: fmt.Sprintf("handler %q for event %q: %v", name, et, err)})
				continue
			}

			if hc.Priority < minPriority || hc.Priority > maxPriority {
				errs = append(errs, Error{Category: CategoryPriorityRange,
					Message: fmt.Sprintf("handler %q priority %d out of range [%d, %d]", name, hc.Priority, minPriority, maxPriority)})
			} else if hc.Enabled {
				if err := claimPriority(et, name, hc.Priority); err != nil {
					errs = append(errs, *err)
				}
			}

			raw := decodeRawTail(node)
			handlers[et][name] = HandlerConfig{Enabled: hc.Enabled, Priority: hc.Priority, Raw: raw}
		}
	}

	var plugins []PluginConfig
	for _, node := range doc.Plugins {
		var pc rawPluginConfig
		if err := node.Decode(&pc); err != nil {
			errs = append(errs, Error{Category: CategoryTypeMismatch,
				Message: fmt.Sprintf("plugin entry: %v", err)})
			continue
		}

		if !protocol.IsValidEventType(pc.EventType) {
			errs = append(errs, Error{Category: CategoryUnknownEventType,
				Message: fmt.Sprintf("unknown event type %q for plugin %q", pc.EventType, pc.Name)})
			continue
		}
		if !handlerNamePattern.MatchString(pc.Name) {
			errs = append(errs, Error{Category: CategoryInvalidName,
				Message: fmt.Sprintf("invalid plugin name %q for event %q", pc.Name, pc.EventType)})
			continue
		}

		if pc.Priority < minPriority || pc.Priority > maxPriority {
			errs = append(errs, Error{Category: CategoryPriorityRange,
				Message: fmt.Sprintf("plugin %q priority %d out of range [%d, %d]", pc.Name, pc.Priority, minPriority, maxPriority)})
		} else if pc.Enabled {
			if err := claimPriority(pc.EventType, pc.Name, pc.Priority); err != nil {
				errs = append(errs, *err)
			}
		}

		raw := decodeRawTail(node)
		delete(raw, "event_type")
		delete(raw, "name")
		plugins = append(plugins, PluginConfig{
			EventType: pc.EventType, Name: pc.Name, Enabled: pc.Enabled, Priority: pc.Priority, Raw: raw,
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &Config{Version: doc.Version, Daemon: doc.Daemon, Handlers: handlers, Plugins: plugins}, nil
}

// checkUnknownTopLevelKeys reports any document-root key outside
// knownTopLevelKeys. Decoding into a generic map (rather than
// rawDocument directly) is what surfaces the extra keys at all: a
// plain yaml.Unmarshal into a typed struct silently drops anything it
// doesn't recognize, which is the right behavior for a handler's own
// passthrough tail but wrong at the document root (spec.md:77).
func checkUnknownTopLevelKeys(data []byte) []Error {
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil
	}

	var unknown []string
	for key := range top {
		if !knownTopLevelKeys[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	errs := make([]Error, 0, len(unknown))
	for _, key := range unknown {
		errs = append(errs, Error{Category: CategoryUnknownTopLevelKey,
			Message: fmt.Sprintf("unknown top-level key %q", key)})
	}
	return errs
}

// decodeRawTail decodes the full node into a generic map so unknown
// top-level-within-handler keys survive as the passthrough tail.
func decodeRawTail(node yaml.Node) map[string]any {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return map[string]any{}
	}
	delete(m, "enabled")
	delete(m, "priority")
	return m
}

func isKnownLogLevel(level string) bool {
	switch logging.Level(level) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarning, logging.LevelError:
		return true
	default:
		return false
	}
}

func applyEnvOverrides(d *Daemon) {
	if v, ok := os.LookupEnv("HOOKS_DAEMON_INPUT_VALIDATION"); ok {
		d.InputValidation.Enabled = isTruthy(v)
	}
	if v, ok := os.LookupEnv("HOOKS_DAEMON_VALIDATION_STRICT"); ok {
		d.InputValidation.StrictMode = isTruthy(v)
	}
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	default:
		return false
	}
}

// Default returns a permissive, minimal Config: validation enabled in
// fail-open mode, a 30 minute idle timeout, INFO logging, and no
// handlers — the same settings the document `init-config --minimal`
// writes. Used as the CLI default when no file exists yet.
func Default() Config {
	return Config{
		Version: SupportedVersion,
		Daemon: Daemon{
			IdleTimeoutSeconds: 1800,
			LogLevel:           string(logging.LevelInfo),
			InputValidation: InputValidation{
				Enabled:             true,
				StrictMode:          false,
				LogValidationErrors: true,
			},
		},
		Handlers: map[protocol.EventType]map[string]HandlerConfig{},
	}
}
