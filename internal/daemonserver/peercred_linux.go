//go:build linux

package daemonserver

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// peerAuthorized checks the connecting process's credentials via
// SO_PEERCRED, so only the socket-file owner may actually complete a
// request even if filesystem permissions were loosened by an
// intermediate umask. This is the "no multi-tenant authentication;
// filesystem permissions suffice" non-goal made concrete (spec §1).
func peerAuthorized(conn net.Conn) bool {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return true // not a real unix socket (e.g. in tests); nothing to check
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return true
	}

	var cred *unix.Ucred
	var credErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil || credErr != nil {
		return true // kernel without SO_PEERCRED support; fall back to filesystem perms
	}

	return int(cred.Uid) == os.Getuid()
}
