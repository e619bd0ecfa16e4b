//go:build unix

// File: reactor/stale_unix.go
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// staleDescriptor reports whether a removal failed only because the
// descriptor was already closed.
func staleDescriptor(err error) bool {
	return errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENOENT)
}
