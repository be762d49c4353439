package builtin

import (
	"testing"

	"github.com/cpi-si/claude-hooks-daemon/internal/config"
	"github.com/cpi-si/claude-hooks-daemon/internal/handler"
	"github.com/cpi-si/claude-hooks-daemon/internal/protocol"
	"github.com/stretchr/testify/require"
)

func TestDestructiveGitDeniesHardReset(t *testing.T) {
	h := NewDestructiveGit(10, nil)
	event := handler.Event{HookInput: map[string]any{
		"tool_name":  "Bash",
		"tool_input": map[string]any{"command": "git reset --hard HEAD"},
	}}
	require.True(t, h.Matches(event))
	result := h.Handle(event)
	require.Equal(t, "deny", string(result.Decision))
	require.NotEmpty(t, result.Reason)
}

func TestDestructiveGitAllowsSafeCommand(t *testing.T) {
	h := NewDestructiveGit(10, nil)
	event := handler.Event{HookInput: map[string]any{
		"tool_name":  "Bash",
		"tool_input": map[string]any{"command": "git status"},
	}}
	result := h.Handle(event)
	require.Equal(t, "allow", string(result.Decision))
}

func TestDestructiveGitOnlyMatchesBash(t *testing.T) {
	h := NewDestructiveGit(10, nil)
	event := handler.Event{HookInput: map[string]any{"tool_name": "Read"}}
	require.False(t, h.Matches(event))
}

func TestBritishEnglishFlagsAmericanSpelling(t *testing.T) {
	h := NewBritishEnglish(56, nil)
	event := handler.Event{HookInput: map[string]any{"content": "The color is red"}}
	require.True(t, h.Matches(event))
	result := h.Handle(event)
	require.Equal(t, "allow", string(result.Decision))
	require.Contains(t, result.Context, "American spelling detected: 'color' → 'colour'")
}

func TestBritishEnglishNoMatchNoContext(t *testing.T) {
	h := NewBritishEnglish(56, nil)
	event := handler.Event{HookInput: map[string]any{"content": "all clear"}}
	result := h.Handle(event)
	require.Empty(t, result.Context)
}

func TestDestructiveGitHonorsExtraPatternsFromRawTail(t *testing.T) {
	h := NewDestructiveGit(10, map[string]any{"extra_patterns": []any{"mkfs"}})
	event := handler.Event{HookInput: map[string]any{
		"tool_name":  "Bash",
		"tool_input": map[string]any{"command": "mkfs.ext4 /dev/sda1"},
	}}
	result := h.Handle(event)
	require.Equal(t, "deny", string(result.Decision))
}

func TestBritishEnglishHonorsCorrectionsFromRawTail(t *testing.T) {
	h := NewBritishEnglish(56, map[string]any{"corrections": map[string]any{"license": "licence"}})
	event := handler.Event{HookInput: map[string]any{"content": "check the license file"}}
	result := h.Handle(event)
	require.Contains(t, result.Context, "American spelling detected: 'license' → 'licence'")
}

func TestBuildRegistryWiresKnownHandlersByName(t *testing.T) {
	cfg := config.Default()
	cfg.Handlers[protocol.EventPreToolUse] = map[string]config.HandlerConfig{
		"destructive_git": {Enabled: true, Priority: 10},
		"british_english": {Enabled: true, Priority: 56},
		"unknown_plugin":  {Enabled: true, Priority: 20},
	}

	reg, err := BuildRegistry(&cfg)
	require.NoError(t, err)

	handlers := reg.HandlersFor(protocol.EventPreToolUse)
	require.Len(t, handlers, 2)
	require.Equal(t, "destructive_git", handlers[0].Name())
	require.Equal(t, "british_english", handlers[1].Name())
}

func TestBuildRegistryDropsDisabledHandlers(t *testing.T) {
	cfg := config.Default()
	cfg.Handlers[protocol.EventPreToolUse] = map[string]config.HandlerConfig{
		"destructive_git": {Enabled: false, Priority: 10},
	}

	reg, err := BuildRegistry(&cfg)
	require.NoError(t, err)
	require.Empty(t, reg.HandlersFor(protocol.EventPreToolUse))
}

func TestBuildRegistryRejectsDuplicatePriority(t *testing.T) {
	cfg := config.Default()
	cfg.Handlers[protocol.EventPreToolUse] = map[string]config.HandlerConfig{
		"destructive_git": {Enabled: true, Priority: 10},
		"british_english": {Enabled: true, Priority: 10},
	}

	_, err := BuildRegistry(&cfg)
	require.Error(t, err)
}

func TestBuildRegistryWiresPluginsListAlongsideHandlers(t *testing.T) {
	cfg := config.Default()
	cfg.Handlers[protocol.EventPreToolUse] = map[string]config.HandlerConfig{
		"destructive_git": {Enabled: true, Priority: 10},
	}
	cfg.Plugins = []config.PluginConfig{
		{EventType: protocol.EventPreToolUse, Name: "british_english", Enabled: true, Priority: 56},
	}

	reg, err := BuildRegistry(&cfg)
	require.NoError(t, err)

	handlers := reg.HandlersFor(protocol.EventPreToolUse)
	require.Len(t, handlers, 2)
	require.Equal(t, "destructive_git", handlers[0].Name())
	require.Equal(t, "british_english", handlers[1].Name())
}
