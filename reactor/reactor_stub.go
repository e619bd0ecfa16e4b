//go:build !unix

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"fmt"
	"runtime"

	"github.com/momentics/hioload-net/api"
)

func newPlatformPoller() (poller, error) {
	return nil, fmt.Errorf("reactor: %s: %w", runtime.GOOS, api.ErrNotSupported)
}

func newPollArrayPoller() (poller, error) {
	return newPlatformPoller()
}

func staleDescriptor(err error) bool { return false }
