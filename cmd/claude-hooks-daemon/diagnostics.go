package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

func cmdLogs(args []string) int {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	root := fs.String("project-root", "", "project root")
	tail := fs.Int("tail", 100, "number of trailing lines to print")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	projectRoot, err := resolveProjectRoot(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	id, err := projectIdentity(projectRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon:", err)
		return 2
	}

	lines, err := tailLines(logPath(id), *tail)
	if err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon: no log file yet")
		return 0
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return 0
}

// tailLines reads the whole file and returns its last n lines. Daemon
// log files are not expected to grow large enough within one idle
// cycle to make this costly; rotation is explicitly not mandated
// (spec §6).
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		all = append(all, scanner.Text())
	}
	if n <= 0 || n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}

func cmdValidateConfig(args []string) int {
	fs := flag.NewFlagSet("validate-config", flag.ContinueOnError)
	root := fs.String("project-root", "", "project root")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := ""
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		projectRoot, err := resolveProjectRoot(*root)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		path = defaultConfigPath(projectRoot)
	}

	_, errs := loadOrDefaultConfig(path)
	if len(errs) > 0 {
		printConfigErrors(os.Stderr, errs)
		return 2
	}
	fmt.Println("config valid:", path)
	return 0
}

func cmdBugReport(args []string) int {
	fs := flag.NewFlagSet("bug-report", flag.ContinueOnError)
	root := fs.String("project-root", "", "project root")
	output := fs.String("output", "-", "output file, or - for stdout")
	// Flags may follow the description, so parsing resumes after each
	// positional word instead of stopping at the first one.
	var words []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if fs.NArg() == 0 {
			break
		}
		words = append(words, fs.Arg(0))
		rest = fs.Args()[1:]
	}
	description := strings.Join(words, " ")

	projectRoot, err := resolveProjectRoot(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	id, err := projectIdentity(projectRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon:", err)
		return 2
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "# Bug Report\n\n")
	fmt.Fprintf(&buf, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, "## Description\n\n%s\n\n", description)
	fmt.Fprintf(&buf, "## Environment\n\n")
	fmt.Fprintf(&buf, "- Go runtime: %s\n", runtime.Version())
	fmt.Fprintf(&buf, "- OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&buf, "- Project root: %s\n", projectRoot)
	fmt.Fprintf(&buf, "- Socket path: %s\n", id.SocketPath)
	fmt.Fprintf(&buf, "- PID file: %s\n", id.PIDPath)

	pid, running := readLivePID(id)
	if running {
		fmt.Fprintf(&buf, "- Daemon status: running (pid %d)\n", pid)
	} else {
		fmt.Fprintf(&buf, "- Daemon status: not running\n")
	}

	fmt.Fprintf(&buf, "\n## Recent Log Tail\n\n```\n")
	if lines, err := tailLines(logPath(id), 50); err == nil {
		for _, line := range lines {
			fmt.Fprintln(&buf, line)
		}
	} else {
		fmt.Fprintln(&buf, "(no log file)")
	}
	fmt.Fprintf(&buf, "```\n")

	if *output == "-" {
		fmt.Print(buf.String())
		return 0
	}
	if err := os.WriteFile(*output, []byte(buf.String()), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "claude-hooks-daemon: writing bug report:", err)
		return 2
	}
	fmt.Println("wrote", *output)
	return 0
}
