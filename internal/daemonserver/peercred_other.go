//go:build !linux

package daemonserver

import "net"

// peerAuthorized is a no-op on platforms without SO_PEERCRED (e.g.
// darwin's equivalent is LOCAL_PEERCRED, not wired here); filesystem
// permissions on the socket file are the enforcement mechanism there.
func peerAuthorized(conn net.Conn) bool {
	return true
}
