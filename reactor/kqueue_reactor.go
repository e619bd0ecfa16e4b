//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - BSD/macOS kqueue implementation.

package reactor

import (
	"os"

	"github.com/momentics/hioload-net/api"
	"golang.org/x/sys/unix"
)

// kqueuePoller implements poller with one read and one write filter per
// descriptor. A descriptor ready for both is reported as two entries.
type kqueuePoller struct {
	kq      int
	changes []unix.Kevent_t
	events  []unix.Kevent_t
}

func newKqueuePoller() (*kqueuePoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{kq: kq, changes: make([]unix.Kevent_t, 0, 2)}, nil
}

func (p *kqueuePoller) name() string { return "kqueue" }

// control submits filter changes for the difference between old and next.
func (p *kqueuePoller) control(fd int, old, next api.EventMask) error {
	p.changes = p.changes[:0]
	p.changes = appendFilterChange(p.changes, fd, unix.EVFILT_READ, old&api.EventRead != 0, next&api.EventRead != 0)
	p.changes = appendFilterChange(p.changes, fd, unix.EVFILT_WRITE, old&api.EventWrite != 0, next&api.EventWrite != 0)
	if len(p.changes) == 0 {
		return nil
	}
	for {
		_, err := unix.Kevent(p.kq, p.changes, nil, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("kevent", err)
		}
		return nil
	}
}

func appendFilterChange(changes []unix.Kevent_t, fd, filter int, had, want bool) []unix.Kevent_t {
	if had == want {
		return changes
	}
	var k unix.Kevent_t
	if want {
		unix.SetKevent(&k, fd, filter, unix.EV_ADD|unix.EV_ENABLE)
	} else {
		unix.SetKevent(&k, fd, filter, unix.EV_DELETE)
	}
	return append(changes, k)
}

// resize keeps two slots per registration: read and write fire separately.
func (p *kqueuePoller) resize(capacity int) {
	events := make([]unix.Kevent_t, 2*capacity)
	copy(events, p.events)
	p.events = events
}

func (p *kqueuePoller) wait(timeoutMs int) (int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, errInterrupted
		}
		return 0, os.NewSyscallError("kevent", err)
	}
	return n, nil
}

func (p *kqueuePoller) ready(i int) (int, api.EventMask) {
	ev := p.events[i]
	fd := int(ev.Ident)
	if ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
		return fd, api.EventReadWrite
	}
	switch int(ev.Filter) {
	case unix.EVFILT_READ:
		return fd, api.EventRead
	case unix.EVFILT_WRITE:
		return fd, api.EventWrite
	}
	return fd, api.EventNone
}

func (p *kqueuePoller) close() error {
	if err := unix.Close(p.kq); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
