// Command claude-hooks-daemon is the single binary that owns the
// daemon's full lifecycle and operator surface: starting and stopping
// it, reporting status, tailing its log, validating a config file
// before committing to it, emitting a handler acceptance playbook,
// scaffolding a new config, and bundling a diagnostic report.
package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return 2
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "start":
		return cmdStart(rest)
	case "stop":
		return cmdStop(rest)
	case "status":
		return cmdStatus(rest)
	case "restart":
		return cmdRestart(rest)
	case "logs":
		return cmdLogs(rest)
	case "validate-config":
		return cmdValidateConfig(rest)
	case "generate-playbook":
		return cmdGeneratePlaybook(rest)
	case "init-config":
		return cmdInitConfig(rest)
	case "bug-report":
		return cmdBugReport(rest)
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "claude-hooks-daemon: unknown command %q\n", cmd)
		printUsage(os.Stderr)
		return 2
	}
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, `Usage: claude-hooks-daemon <command> [flags]

Commands:
  start             [--project-root DIR] [--config PATH] [--detach]
  stop              [--project-root DIR]
  status            [--project-root DIR]
  restart           [--project-root DIR] [--config PATH] [--detach]
  logs              [--project-root DIR] [--tail N]
  validate-config   [path]
  generate-playbook [--project-root DIR] [--config PATH] [--format md|json|yaml]
  init-config       [--project-root DIR] [--minimal|--full] [--force]
  bug-report        "<description>" [--project-root DIR] [--output FILE|-]`)
}
