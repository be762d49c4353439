package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cpi-si/claude-hooks-daemon/internal/config"
	"github.com/cpi-si/claude-hooks-daemon/internal/identity"
)

// configRelPath is the fixed, project-relative config location spec.md
// §6 names.
const configRelPath = ".claude/hooks-daemon.yaml"

// resolveProjectRoot returns root if non-empty (made absolute), or the
// current working directory otherwise.
func resolveProjectRoot(root string) (string, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolving working directory: %w", err)
		}
		return wd, nil
	}
	return filepath.Abs(root)
}

func defaultConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, configRelPath)
}

func logPath(id identity.Identity) string {
	return filepath.Join(id.RuntimeDir, "daemon.log")
}

// loadOrDefaultConfig loads the config at path if it exists, or
// returns config.Default() when path is absent entirely (a fresh
// project with no config file yet is not a config_error; an
// unreadable-but-present file, or one that fails validation, is).
func loadOrDefaultConfig(path string) (*config.Config, []config.Error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}

func printConfigErrors(w *os.File, errs []config.Error) {
	fmt.Fprintln(w, "config_error: the following problems were found:")
	for _, e := range errs {
		fmt.Fprintf(w, "  - %s: %s\n", e.Category, e.Message)
	}
}

func projectIdentity(projectRoot string) (identity.Identity, error) {
	return identity.Resolve(projectRoot)
}
