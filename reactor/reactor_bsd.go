//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// File: reactor/reactor_bsd.go
// Author: momentics <momentics@gmail.com>
//
// macOS and BSD backend selection.

package reactor

func newPlatformPoller() (poller, error) {
	return newKqueuePoller()
}
