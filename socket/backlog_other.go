//go:build unix && !linux

// File: socket/backlog_other.go
// Author: momentics <momentics@gmail.com>

package socket

import "golang.org/x/sys/unix"

func maxListenerBacklog() int {
	return unix.SOMAXCONN
}
