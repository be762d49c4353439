package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotStartsEmpty(t *testing.T) {
	s := New()
	snap := s.Snapshot()
	require.Equal(t, "", snap.ModelID)
	require.True(t, snap.LastUpdated.IsZero())
}

func TestUpdateFromStatusPopulatesFields(t *testing.T) {
	s := New()
	s.UpdateFromStatus(map[string]any{
		"model_id":                "claude-opus",
		"model_display_name":      "Claude Opus",
		"context_used_percentage": 42.5,
		"workspace_dir":           "/home/a/proj",
	})
	snap := s.Snapshot()
	require.Equal(t, "claude-opus", snap.ModelID)
	require.Equal(t, "Claude Opus", snap.ModelDisplayName)
	require.InDelta(t, 42.5, snap.ContextUsedPercentage, 0.001)
	require.Equal(t, "/home/a/proj", snap.WorkspaceDir)
	require.False(t, snap.LastUpdated.IsZero())
}

func TestUpdateFromStatusIgnoresMalformedFields(t *testing.T) {
	s := New()
	require.NotPanics(t, func() {
		s.UpdateFromStatus(map[string]any{
			"model_id":                42,
			"context_used_percentage": "not-a-number",
		})
	})
	snap := s.Snapshot()
	require.Equal(t, "", snap.ModelID)
}
