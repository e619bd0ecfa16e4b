//go:build unix && !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

// File: reactor/reactor_poll.go
// Author: momentics <momentics@gmail.com>
//
// Backend selection for Unix systems without epoll or kqueue.

package reactor

func newPlatformPoller() (poller, error) {
	return newPollArrayPoller()
}
