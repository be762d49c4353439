// Package playbook renders the acceptance checklist the
// generate-playbook subcommand prints: one row per currently
// registered handler, grouped by event type in dispatch order. Output
// is ephemeral — nothing here writes to disk on its own — and the
// checklist is derived entirely from the live handler.Registry rather
// than from a separately maintained document, collapsing what the
// teacher's source kept as several overlapping playbook/test files
// into one generated contract.
package playbook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/cpi-si/claude-hooks-daemon/internal/handler"
	"github.com/cpi-si/claude-hooks-daemon/internal/protocol"
)

// Format is the closed set of output encodings generate-playbook
// accepts.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// Entry is one handler's row in the checklist.
type Entry struct {
	EventType protocol.EventType `json:"event_type" yaml:"event_type"`
	Name      string             `json:"name" yaml:"name"`
	Priority  int                `json:"priority" yaml:"priority"`
	Terminal  bool               `json:"terminal" yaml:"terminal"`
}

// Build walks the registry and produces one Entry per handler, sorted
// first by the declared EventTypes order and then by ascending
// priority within each event type — the same order dispatch uses.
func Build(reg *handler.Registry) []Entry {
	var entries []Entry
	for _, et := range protocol.EventTypes {
		for _, h := range reg.HandlersFor(et) {
			entries = append(entries, Entry{
				EventType: et,
				Name:      h.Name(),
				Priority:  h.Priority(),
				Terminal:  h.Terminal(),
			})
		}
	}
	return entries
}

// Render encodes entries in the requested format. An unrecognized
// format is treated as Markdown, matching the CLI's "unknown flag
// value falls back to the safest default" discipline used elsewhere
// (spec §5 input validation philosophy, applied here to operator
// ergonomics rather than wire input).
func Render(entries []Entry, format Format) (string, error) {
	switch format {
	case FormatJSON:
		return renderJSON(entries)
	case FormatYAML:
		return renderYAML(entries)
	default:
		return renderMarkdown(entries), nil
	}
}

func renderJSON(entries []Entry) (string, error) {
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("playbook: encoding json: %w", err)
	}
	return string(payload) + "\n", nil
}

func renderYAML(entries []Entry) (string, error) {
	payload, err := yaml.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("playbook: encoding yaml: %w", err)
	}
	return string(payload), nil
}

func renderMarkdown(entries []Entry) string {
	var buf bytes.Buffer
	buf.WriteString("# Hook Dispatcher Acceptance Playbook\n\n")

	if len(entries) == 0 {
		buf.WriteString("No handlers are currently registered.\n")
		return buf.String()
	}

	grouped := make(map[protocol.EventType][]Entry)
	for _, e := range entries {
		grouped[e.EventType] = append(grouped[e.EventType], e)
	}

	var eventTypes []protocol.EventType
	for et := range grouped {
		eventTypes = append(eventTypes, et)
	}
	sort.Slice(eventTypes, func(i, j int) bool {
		return indexOf(eventTypes[i]) < indexOf(eventTypes[j])
	})

	for _, et := range eventTypes {
		fmt.Fprintf(&buf, "## %s\n\n", et)
		tw := tabwriter.NewWriter(&buf, 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "priority\tname\tterminal\tcheck")
		for _, e := range grouped[et] {
			fmt.Fprintf(tw, "%d\t%s\t%t\t[ ] verify %s fires in order and its decision is respected\n",
				e.Priority, e.Name, e.Terminal, e.Name)
		}
		tw.Flush()
		buf.WriteString("\n")
	}

	return buf.String()
}

func indexOf(et protocol.EventType) int {
	for i, known := range protocol.EventTypes {
		if known == et {
			return i
		}
	}
	return len(protocol.EventTypes)
}
