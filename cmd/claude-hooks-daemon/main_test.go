package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusAndStopReportNotRunningWhenNoDaemon(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, 1, realMain([]string{"status", "--project-root", dir}))
	require.Equal(t, 1, realMain([]string{"stop", "--project-root", dir}))
}

func TestInitConfigWritesMinimalByDefaultAndRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, 0, realMain([]string{"init-config", "--project-root", dir}))

	path := filepath.Join(dir, configRelPath)
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.Equal(t, 1, realMain([]string{"init-config", "--project-root", dir}))
	require.Equal(t, 0, realMain([]string{"init-config", "--project-root", dir, "--force", "--full"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "destructive_git")
}

func TestValidateConfigAcceptsFreshProjectWithNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, 0, realMain([]string{"validate-config", "--project-root", dir}))
}

func TestValidateConfigRejectsBadVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, configRelPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("version: \"0.1\"\ndaemon:\n  idle_timeout_seconds: 10\n  log_level: INFO\n"), 0o644))

	require.Equal(t, 2, realMain([]string{"validate-config", "--project-root", dir}))
}

func TestGeneratePlaybookSucceedsOnFreshProject(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, 0, realMain([]string{"generate-playbook", "--project-root", dir}))
}

func TestGeneratePlaybookSucceedsWithConfiguredHandlers(t *testing.T) {
	dir := t.TempDir()
	require.Equal(t, 0, realMain([]string{"init-config", "--project-root", dir, "--full"}))
	require.Equal(t, 0, realMain([]string{"generate-playbook", "--project-root", dir, "--format", "json"}))
}

func TestBugReportWritesDiagnosticBundle(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "report.md")
	require.Equal(t, 0, realMain([]string{"bug-report", "--project-root", dir, "--output", out, "forwarder never connects"}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), "forwarder never connects")
	require.Contains(t, string(data), "Daemon status: not running")
}
