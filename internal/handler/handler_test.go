package handler

import (
	"testing"

	"github.com/cpi-si/claude-hooks-daemon/internal/protocol"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	name      string
	eventType protocol.EventType
	priority  int
	terminal  bool
	result    Result
}

func (s stubHandler) Name() string                    { return s.name }
func (s stubHandler) EventType() protocol.EventType    { return s.eventType }
func (s stubHandler) Priority() int                    { return s.priority }
func (s stubHandler) Terminal() bool                   { return s.terminal }
func (s stubHandler) Matches(Event) bool               { return true }
func (s stubHandler) Handle(Event) Result              { return s.result }

func TestBuildSortsByPriority(t *testing.T) {
	h1 := stubHandler{name: "late", eventType: protocol.EventPreToolUse, priority: 50}
	h2 := stubHandler{name: "early", eventType: protocol.EventPreToolUse, priority: 5}

	reg, err := Build([]Registered{
		{Handler: h1, Enabled: true},
		{Handler: h2, Enabled: true},
	})
	require.NoError(t, err)

	ordered := reg.HandlersFor(protocol.EventPreToolUse)
	require.Len(t, ordered, 2)
	require.Equal(t, "early", ordered[0].Name())
	require.Equal(t, "late", ordered[1].Name())
}

func TestBuildDropsDisabledHandlers(t *testing.T) {
	h := stubHandler{name: "off", eventType: protocol.EventPreToolUse, priority: 10}
	reg, err := Build([]Registered{{Handler: h, Enabled: false}})
	require.NoError(t, err)
	require.Empty(t, reg.HandlersFor(protocol.EventPreToolUse))
}

func TestBuildRejectsDuplicatePriority(t *testing.T) {
	h1 := stubHandler{name: "a", eventType: protocol.EventPreToolUse, priority: 10}
	h2 := stubHandler{name: "b", eventType: protocol.EventPreToolUse, priority: 10}

	_, err := Build([]Registered{
		{Handler: h1, Enabled: true},
		{Handler: h2, Enabled: true},
	})
	require.Error(t, err)
	var dup *DuplicatePriorityError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, 10, dup.Priority)
}

func TestHandlersForUnknownEventTypeIsEmpty(t *testing.T) {
	reg, err := Build(nil)
	require.NoError(t, err)
	require.Empty(t, reg.HandlersFor(protocol.EventStop))
}
