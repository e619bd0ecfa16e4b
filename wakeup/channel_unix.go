//go:build unix

// File: wakeup/channel_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wakeup

import (
	"os"
	"syscall"

	"github.com/momentics/hioload-net/api"
	"golang.org/x/sys/unix"
)

// New opens a close-on-exec pipe with both ends non-blocking.
func New() (*Channel, error) {
	var p [2]int
	syscall.ForkLock.RLock()
	err := unix.Pipe(p[:])
	if err == nil {
		unix.CloseOnExec(p[0])
		unix.CloseOnExec(p[1])
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return nil, os.NewSyscallError("pipe", err)
	}
	for _, fd := range p {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, os.NewSyscallError("setnonblock", err)
		}
	}
	return &Channel{rfd: p[0], wfd: p[1]}, nil
}

// Write sends p to the read end, retrying EINTR and short writes. If the
// channel fills up it returns the bytes written and api.ErrWouldBlock.
func (c *Channel) Write(p []byte) (int, error) {
	if c.closed {
		return 0, c.fail(api.ErrClosed)
	}
	written := 0
	for written < len(p) {
		n, err := unix.Write(c.wfd, p[written:])
		if n > 0 {
			written += n
		}
		switch err {
		case nil:
			continue
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return written, api.ErrWouldBlock
		}
		return written, c.fail(os.NewSyscallError("write", err))
	}
	return written, nil
}

// Read receives up to len(p) bytes, retrying EINTR. An empty channel
// returns api.ErrWouldBlock; a closed write end returns api.ErrPeerClosed.
func (c *Channel) Read(p []byte) (int, error) {
	if c.closed {
		return 0, c.fail(api.ErrClosed)
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(c.rfd, p)
		switch err {
		case nil:
			if n == 0 {
				return 0, c.fail(api.ErrPeerClosed)
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, api.ErrWouldBlock
		}
		return 0, c.fail(os.NewSyscallError("read", err))
	}
}

func closeFD(fd int) error {
	if fd < 0 {
		return nil
	}
	if err := unix.Close(fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
