// Package identity derives the per-project filesystem paths the daemon
// owns: the Unix socket, the PID file, and the runtime directory they
// live under. All functions are pure given a fixed project root and a
// fixed environment: runtime_dir candidates come from XDG_RUNTIME_DIR,
// the temp directory and the user id, and one is chosen by socket-path
// length alone. Nothing here reads, creates or checks anything on the
// filesystem.
package identity

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrPathTooLong is returned when every candidate runtime directory
// yields a socket path over the platform's sun_path limit.
var ErrPathTooLong = errors.New("identity: socket path exceeds platform limit on every candidate runtime dir")

// maxSocketPathLen mirrors the historical sizeof(sockaddr_un.sun_path)
// on Linux and matches the struct field exposed by golang.org/x/sys/unix
// on the platforms we target; darwin's is larger but we hold every
// platform to the stricter bound so a socket created on Linux and later
// inspected from any platform never appears to violate the invariant.
const maxSocketPathLen = 108

var basenameSanitizer = regexp.MustCompile(`[^a-z0-9_-]+`)

// Identity is the pair of filesystem paths a daemon instance owns for
// one project root.
type Identity struct {
	ProjectRoot string
	RuntimeDir  string
	SocketPath  string
	PIDPath     string
}

// Resolve derives the socket path, PID path, and chosen runtime
// directory for projectRoot. projectRoot must already be an absolute,
// cleaned path; callers are expected to have resolved symlinks and
// made it absolute before calling (e.g. via filepath.Abs).
func Resolve(projectRoot string) (Identity, error) {
	stem, err := stemFor(projectRoot)
	if err != nil {
		return Identity{}, err
	}

	for _, dir := range runtimeDirCandidates() {
		sock := filepath.Join(dir, stem+".sock")
		pid := filepath.Join(dir, stem+".pid")
		if len(sock) <= maxSocketPathLen {
			return Identity{
				ProjectRoot: projectRoot,
				RuntimeDir:  dir,
				SocketPath:  sock,
				PIDPath:     pid,
			}, nil
		}
	}
	return Identity{}, fmt.Errorf("%w: project root %q", ErrPathTooLong, projectRoot)
}

// SocketPath is a convenience wrapper for callers that only need the
// socket path, matching spec's socket_path(project_root) pure function.
func SocketPath(projectRoot string) (string, error) {
	id, err := Resolve(projectRoot)
	if err != nil {
		return "", err
	}
	return id.SocketPath, nil
}

// PIDPath mirrors pid_path(project_root).
func PIDPath(projectRoot string) (string, error) {
	id, err := Resolve(projectRoot)
	if err != nil {
		return "", err
	}
	return id.PIDPath, nil
}

// DiscoveryPath is the well-known file written when the resolved
// runtime dir required falling back off the first candidate, so a
// forwarder that assumes the default can instead read the real path.
func DiscoveryPath(projectRoot string) (string, error) {
	id, err := Resolve(projectRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(id.RuntimeDir, "daemon.socket-path"), nil
}

// stemFor builds "claude-hooks-<basename>-<hash8>", the shared stem
// socket and pid paths are derived from.
func stemFor(projectRoot string) (string, error) {
	if !filepath.IsAbs(projectRoot) {
		return "", fmt.Errorf("identity: project root %q is not absolute", projectRoot)
	}
	base := sanitizeBasename(filepath.Base(filepath.Clean(projectRoot)))
	sum := md5.Sum([]byte(projectRoot))
	hash8 := hex.EncodeToString(sum[:])[:8]
	return fmt.Sprintf("claude-hooks-%s-%s", base, hash8), nil
}

func sanitizeBasename(base string) string {
	lower := strings.ToLower(base)
	cleaned := basenameSanitizer.ReplaceAllString(lower, "-")
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		cleaned = "project"
	}
	return cleaned
}

// runtimeDirCandidates returns runtime directory choices in priority
// order: XDG_RUNTIME_DIR, then a per-user subdirectory of TMPDIR/os.TempDir,
// then the bare system temp directory. Every candidate is returned
// (not just the first that exists) so Resolve can fall back through
// the list purely on path length, per spec's "falls back to a shorter
// runtime_dir" rule.
func runtimeDirCandidates() []string {
	var candidates []string

	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "claude-hooks"))
	}

	tmp := os.TempDir()
	if uid := os.Getuid(); uid >= 0 {
		candidates = append(candidates, filepath.Join(tmp, fmt.Sprintf("claude-hooks-%d", uid)))
	}

	candidates = append(candidates, tmp)

	return candidates
}
