package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	req := Request{Event: EventPreToolUse, HookInput: map[string]any{"tool_name": "Bash"}, RequestID: "r1"}
	require.NoError(t, enc.Encode(req))
	require.True(t, strings.HasSuffix(buf.String(), "\n"))

	dec := NewDecoder(&buf)
	got, err := dec.DecodeRequest()
	require.NoError(t, err)
	require.Equal(t, req.Event, got.Event)
	require.Equal(t, req.RequestID, got.RequestID)
}

func TestDecodeRequestTooLarge(t *testing.T) {
	huge := strings.Repeat("a", MaxRequestBytes+10)
	line := `{"event":"PreToolUse","hook_input":{},"request_id":"` + huge + `"}` + "\n"
	dec := NewDecoder(strings.NewReader(line))
	_, err := dec.DecodeRequest()
	require.ErrorIs(t, err, ErrRequestTooLarge)
}

func TestIsValidEventType(t *testing.T) {
	require.True(t, IsValidEventType(EventPreToolUse))
	require.False(t, IsValidEventType(EventType("NotARealEvent")))
}

func TestIsStatusEvent(t *testing.T) {
	require.True(t, IsStatusEvent(EventStatus))
	require.True(t, IsStatusEvent(EventSessionStart))
	require.False(t, IsStatusEvent(EventPreToolUse))
}

func TestAllowResultHasEmptyContextNotNil(t *testing.T) {
	r := AllowResult()
	require.Equal(t, DecisionAllow, r.Decision)
	require.NotNil(t, r.Context)
	require.Empty(t, r.Context)
}
