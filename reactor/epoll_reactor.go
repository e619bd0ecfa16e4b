//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"os"

	"github.com/momentics/hioload-net/api"
	"golang.org/x/sys/unix"
)

// epollPoller implements poller using level-triggered epoll.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

// newEpollPoller creates a new close-on-exec epoll instance.
func newEpollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &epollPoller{epfd: epfd}, nil
}

func (p *epollPoller) name() string { return "epoll" }

func (p *epollPoller) control(fd int, old, next api.EventMask) error {
	op := unix.EPOLL_CTL_MOD
	switch {
	case old == api.EventNone:
		op = unix.EPOLL_CTL_ADD
	case next == api.EventNone:
		op = unix.EPOLL_CTL_DEL
	}
	ev := unix.EpollEvent{Events: toEpoll(next), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func toEpoll(events api.EventMask) uint32 {
	var ev uint32
	if events&api.EventRead != 0 {
		ev |= unix.EPOLLIN
	}
	if events&api.EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) resize(capacity int) {
	events := make([]unix.EpollEvent, capacity)
	copy(events, p.events)
	p.events = events
}

// wait blocks and waits for events on registered file descriptors.
// timeoutMs < 0 means block infinitely.
func (p *epollPoller) wait(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, errInterrupted
		}
		return 0, os.NewSyscallError("epoll_wait", err)
	}
	return n, nil
}

func (p *epollPoller) ready(i int) (int, api.EventMask) {
	ev := p.events[i]
	if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		return int(ev.Fd), api.EventReadWrite
	}
	var mask api.EventMask
	if ev.Events&unix.EPOLLIN != 0 {
		mask |= api.EventRead
	}
	if ev.Events&unix.EPOLLOUT != 0 {
		mask |= api.EventWrite
	}
	return int(ev.Fd), mask
}

// close releases the epoll file descriptor.
func (p *epollPoller) close() error {
	if err := unix.Close(p.epfd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
