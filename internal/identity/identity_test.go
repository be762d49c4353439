package identity

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSocketPathDeterministic(t *testing.T) {
	a, err := SocketPath("/home/a/proj-x")
	require.NoError(t, err)
	b, err := SocketPath("/home/a/proj-x")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestSocketPathDistinctProjects(t *testing.T) {
	x, err := SocketPath("/home/a/proj-x")
	require.NoError(t, err)
	y, err := SocketPath("/home/a/proj-y")
	require.NoError(t, err)
	require.NotEqual(t, x, y)

	pattern := regexp.MustCompile(`claude-hooks-proj-[xy]-[0-9a-f]{8}\.sock$`)
	require.Regexp(t, pattern, x)
	require.Regexp(t, pattern, y)
}

func TestResolveRejectsRelativeRoot(t *testing.T) {
	_, err := Resolve("relative/path")
	require.Error(t, err)
}

func TestSanitizeBasenameHandlesUnsafeCharacters(t *testing.T) {
	require.Equal(t, "project", sanitizeBasename(""))
	require.Equal(t, "my-cool-project", sanitizeBasename("My Cool!!Project"))
}

func TestPIDPathSharesStemWithSocketPath(t *testing.T) {
	id, err := Resolve("/tmp/some/project")
	require.NoError(t, err)
	require.Equal(t, id.SocketPath[:len(id.SocketPath)-len(".sock")], id.PIDPath[:len(id.PIDPath)-len(".pid")])
}
