package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunFallsOpenOnUnknownEventType(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--event", "NotARealEvent", "--project-root", t.TempDir()}, strings.NewReader("{}"), &stdout, &stderr)
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), `"decision":"allow"`)
}

func TestRunFallsOpenOnInvalidJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--event", "PreToolUse", "--project-root", t.TempDir()}, strings.NewReader("{not json"), &stdout, &stderr)
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), `"decision":"allow"`)
}

func TestRunTreatsEmptyStdinAsEmptyObject(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--event", "SessionStart", "--project-root", t.TempDir(), "--request-id", "r1"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), `"decision":"allow"`)
}
