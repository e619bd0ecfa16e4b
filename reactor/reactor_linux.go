//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux backend selection.

package reactor

func newPlatformPoller() (poller, error) {
	return newEpollPoller()
}
