//go:build unix

// File: reactor/poll_reactor.go
// Author: momentics <momentics@gmail.com>
//
// poll(2) array implementation, the fallback for Unix systems without epoll
// or kqueue.

package reactor

import (
	"os"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-net/api"
	"golang.org/x/sys/unix"
)

type readyEntry struct {
	fd     int
	events api.EventMask
}

// pollArrayPoller keeps registrations in a slot arena passed to poll(2) as
// is. Released slots hold fd -1, which poll ignores, and are reused through
// a free list.
type pollArrayPoller struct {
	fds   []unix.PollFd
	slots map[int]int
	free  *queue.Queue
	out   []readyEntry
}

func newPollArrayPoller() (poller, error) {
	return &pollArrayPoller{
		slots: make(map[int]int),
		free:  queue.New(),
	}, nil
}

func (p *pollArrayPoller) name() string { return "poll" }

func (p *pollArrayPoller) control(fd int, old, next api.EventMask) error {
	switch {
	case old == api.EventNone:
		if _, dup := p.slots[fd]; dup {
			return os.NewSyscallError("poll register", unix.EEXIST)
		}
		slot := p.allocate()
		p.fds[slot] = unix.PollFd{Fd: int32(fd), Events: toPoll(next)}
		p.slots[fd] = slot
	case next == api.EventNone:
		slot, ok := p.slots[fd]
		if !ok {
			return os.NewSyscallError("poll unregister", unix.ENOENT)
		}
		p.fds[slot] = unix.PollFd{Fd: -1}
		delete(p.slots, fd)
		p.free.Add(slot)
	default:
		slot, ok := p.slots[fd]
		if !ok {
			return os.NewSyscallError("poll modify", unix.ENOENT)
		}
		p.fds[slot].Events = toPoll(next)
	}
	return nil
}

func (p *pollArrayPoller) allocate() int {
	if p.free.Length() > 0 {
		return p.free.Remove().(int)
	}
	p.fds = append(p.fds, unix.PollFd{Fd: -1})
	return len(p.fds) - 1
}

func toPoll(events api.EventMask) int16 {
	var ev int16
	if events&api.EventRead != 0 {
		ev |= unix.POLLIN
	}
	if events&api.EventWrite != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func (p *pollArrayPoller) resize(capacity int) {
	out := make([]readyEntry, 0, capacity)
	p.out = append(out, p.out...)
}

func (p *pollArrayPoller) wait(timeoutMs int) (int, error) {
	p.out = p.out[:0]
	n, err := unix.Poll(p.fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, errInterrupted
		}
		return 0, os.NewSyscallError("poll", err)
	}
	for i := 0; i < len(p.fds) && len(p.out) < n; i++ {
		pfd := &p.fds[i]
		if pfd.Fd < 0 || pfd.Revents == 0 {
			continue
		}
		var mask api.EventMask
		if pfd.Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			mask = api.EventReadWrite
		} else {
			if pfd.Revents&unix.POLLIN != 0 {
				mask |= api.EventRead
			}
			if pfd.Revents&unix.POLLOUT != 0 {
				mask |= api.EventWrite
			}
		}
		p.out = append(p.out, readyEntry{fd: int(pfd.Fd), events: mask})
		pfd.Revents = 0
	}
	return len(p.out), nil
}

func (p *pollArrayPoller) ready(i int) (int, api.EventMask) {
	e := p.out[i]
	return e.fd, e.events
}

func (p *pollArrayPoller) close() error {
	p.fds = nil
	p.out = nil
	clear(p.slots)
	return nil
}
