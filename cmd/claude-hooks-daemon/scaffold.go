package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cpi-si/claude-hooks-daemon/internal/builtin"
	"github.com/cpi-si/claude-hooks-daemon/internal/config"
	"github.com/cpi-si/claude-hooks-daemon/internal/playbook"
)

func cmdGeneratePlaybook(args []string) int {
	fs := flag.NewFlagSet("generate-playbook", flag.ContinueOnError)
	root := fs.String("project-root", "", "project root")
	configPath := fs.String("config", "", "config file path")
	format := fs.String("format", "md", "output format: md, json, or yaml")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	projectRoot, err := resolveProjectRoot(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *configPath == "" {
		*configPath = defaultConfigPath(projectRoot)
	}

	cfg, errs := loadOrDefaultConfig(*configPath)
	if len(errs) > 0 {
		printConfigErrors(os.Stderr, errs)
		return 2
	}

	reg, err := builtin.BuildRegistry(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon: config_error:", err)
		return 2
	}

	out, err := playbook.Render(playbook.Build(reg), playbook.Format(*format))
	if err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon:", err)
		return 2
	}
	fmt.Print(out)
	return 0
}

func cmdInitConfig(args []string) int {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	root := fs.String("project-root", "", "project root")
	minimal := fs.Bool("minimal", false, "write a minimal config (no handlers)")
	full := fs.Bool("full", false, "write a config with the builtin handlers enabled")
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *minimal && *full {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon: --minimal and --full are mutually exclusive")
		return 2
	}

	projectRoot, err := resolveProjectRoot(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	path := defaultConfigPath(projectRoot)

	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon: config already exists:", path)
		return 1
	}

	doc := minimalConfigYAML
	if *full {
		doc = fullConfigYAML
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon:", err)
		return 2
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon:", err)
		return 2
	}
	fmt.Println("wrote", path)
	return 0
}

const minimalConfigYAML = `version: "` + config.SupportedVersion + `"
daemon:
  idle_timeout_seconds: 1800
  log_level: INFO
  input_validation:
    enabled: true
    strict_mode: false
    log_validation_errors: true
handlers: {}
`

const fullConfigYAML = `version: "` + config.SupportedVersion + `"
daemon:
  idle_timeout_seconds: 1800
  log_level: INFO
  input_validation:
    enabled: true
    strict_mode: false
    log_validation_errors: true
handlers:
  PreToolUse:
    destructive_git:
      enabled: true
      priority: 10
    british_english:
      enabled: true
      priority: 56
`
