//go:build linux

// File: socket/sendflags_linux.go
// Author: momentics <momentics@gmail.com>

package socket

import "golang.org/x/sys/unix"

// sendFlags adds MSG_NOSIGNAL so a closed peer yields EPIPE, not SIGPIPE.
func sendFlags(flags int) int {
	return flags | unix.MSG_NOSIGNAL
}
