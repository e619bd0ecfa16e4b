//go:build unix

// File: socket/socket_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listen, connect, accept and data transfer over unix file descriptors.

package socket

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/momentics/hioload-net/api"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var errAlreadyOpen = fmt.Errorf("socket already open: %w", api.ErrInvalidArgument)

// Listen binds and, for stream sockets, listens. For IP families host may be
// a name, a literal, or empty for the wildcard address; the first resolved
// candidate that binds wins. For FamilyUnix host is the socket path and port
// is ignored; a stale file at the path is removed first.
func (s *Socket) Listen(ctx context.Context, host, port string) error {
	if s.open {
		return s.fail("listen", errAlreadyOpen)
	}
	if s.family == FamilyUnix {
		return s.listenUnix(host)
	}

	addrs, err := resolve(ctx, s.family, s.kind, host, port, true)
	if err != nil {
		return s.fail("listen", err)
	}
	var lastErr error
	for _, sa := range addrs {
		fd, err := s.bindListen(sa)
		if err != nil {
			lastErr = err
			continue
		}
		s.setFD(fd)
		return nil
	}
	return s.fail("listen", lastErr)
}

func (s *Socket) listenUnix(path string) error {
	sa, err := unixSockaddr(path)
	if err != nil {
		return s.fail("listen", err)
	}
	abstract := path[0] == '@'
	if !abstract {
		if err := unix.Unlink(path); err != nil && err != unix.ENOENT {
			return s.fail("listen", os.NewSyscallError("unlink", err))
		}
	}
	fd, err := s.bindListen(sa)
	if err != nil {
		return s.fail("listen", err)
	}
	s.setFD(fd)
	if !abstract {
		s.path = path
	}
	return nil
}

// bindListen opens a descriptor, binds it to sa and starts listening.
// The descriptor is closed on every failure path.
func (s *Socket) bindListen(sa unix.Sockaddr) (int, error) {
	fd, err := s.openFD(true)
	if err != nil {
		return closedFD, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return closedFD, os.NewSyscallError("bind", err)
	}
	if s.kind == KindStream {
		if err := unix.Listen(fd, s.backlog()); err != nil {
			unix.Close(fd)
			return closedFD, os.NewSyscallError("listen", err)
		}
	}
	return fd, nil
}

// Connect opens a descriptor and connects it to the first reachable
// destination candidate, optionally binding to a source address first.
// For FamilyUnix dstHost and srcHost are paths and ports are ignored.
//
// On a non-blocking socket a connection still in progress returns
// api.ErrWouldBlock with the descriptor open: register it for write
// readiness and call FinishConnect once it is reported writable.
func (s *Socket) Connect(ctx context.Context, dstHost, dstPort, srcHost, srcPort string) error {
	if s.open {
		return s.fail("connect", errAlreadyOpen)
	}

	var dsts []unix.Sockaddr
	var src unix.Sockaddr
	if s.family == FamilyUnix {
		sa, err := unixSockaddr(dstHost)
		if err != nil {
			return s.fail("connect", err)
		}
		dsts = []unix.Sockaddr{sa}
		if srcHost != "" {
			if src, err = unixSockaddr(srcHost); err != nil {
				return s.fail("connect", err)
			}
		}
	} else {
		var err error
		if dsts, err = resolve(ctx, s.family, s.kind, dstHost, dstPort, false); err != nil {
			return s.fail("connect", err)
		}
		if srcHost != "" || srcPort != "" {
			srcs, err := resolve(ctx, s.family, s.kind, srcHost, srcPort, true)
			if err != nil {
				return s.fail("connect", err)
			}
			src = srcs[0]
		}
	}

	var lastErr error
	for _, sa := range dsts {
		fd, err := s.openFD(false)
		if err != nil {
			lastErr = err
			continue
		}
		if src != nil {
			if err := unix.Bind(fd, src); err != nil {
				unix.Close(fd)
				lastErr = os.NewSyscallError("bind", err)
				continue
			}
		}
		err = unix.Connect(fd, sa)
		switch {
		case err == nil:
			s.setFD(fd)
			return nil
		case err == unix.EINPROGRESS || err == unix.EAGAIN || err == unix.EINTR:
			if !s.blocking {
				s.setFD(fd)
				return api.ErrWouldBlock
			}
			// A blocking connect interrupted by a signal completes
			// asynchronously; wait for it here.
			if err = waitConnected(fd); err == nil {
				s.setFD(fd)
				return nil
			}
		}
		unix.Close(fd)
		lastErr = os.NewSyscallError("connect", err)
	}
	return s.fail("connect", lastErr)
}

// waitConnected polls fd for writability and returns its pending error.
func waitConnected(fd int) error {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(pfd, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		break
	}
	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soerr != 0 {
		return unix.Errno(soerr)
	}
	return nil
}

// FinishConnect reads the pending socket error of a non-blocking connect.
// nil means the connection is established.
func (s *Socket) FinishConnect() error {
	if !s.open {
		return s.fail("connect", api.ErrClosed)
	}
	soerr, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return s.fail("connect", os.NewSyscallError("getsockopt SO_ERROR", err))
	}
	if soerr != 0 {
		return s.fail("connect", os.NewSyscallError("connect", unix.Errno(soerr)))
	}
	return nil
}

// Accept takes one pending connection into into, which must be closed.
// into inherits kind, family, blocking mode, policy and logger from s.
// A non-blocking listener with nothing pending returns api.ErrWouldBlock.
func (s *Socket) Accept(into *Socket) error {
	if !s.open {
		return s.fail("accept", api.ErrClosed)
	}
	if into.open {
		return s.fail("accept", fmt.Errorf("accept target: %w", errAlreadyOpen))
	}
	nfd, _, err := sysAccept(s.fd)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return api.ErrWouldBlock
		}
		return s.fail("accept", os.NewSyscallError("accept", err))
	}

	into.Init(s.kind, s.blocking, s.family)
	into.policy = s.policy
	into.log = s.log
	if err := unix.SetNonblock(nfd, !s.blocking); err != nil {
		unix.Close(nfd)
		return s.fail("accept", os.NewSyscallError("setnonblock", err))
	}
	if err := into.applyPolicy(nfd); err != nil {
		unix.Close(nfd)
		return s.fail("accept", err)
	}
	into.setFD(nfd)
	return nil
}

// Send writes buf and returns the number of bytes the kernel accepted,
// which may be fewer than len(buf).
func (s *Socket) Send(buf []byte, flags int) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if !s.open {
		return 0, s.fail("send", api.ErrClosed)
	}
	for {
		n, err := unix.SendmsgN(s.fd, buf, nil, nil, sendFlags(flags))
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, api.ErrWouldBlock
		}
		return 0, s.fail("send", os.NewSyscallError("send", err))
	}
}

// SendTo sends buf as one datagram to host:port, or to the path in host for
// FamilyUnix. A closed datagram socket is opened first and stays open;
// stream sockets must already be open.
func (s *Socket) SendTo(ctx context.Context, buf []byte, host, port string, flags int) (int, error) {
	var sa unix.Sockaddr
	if s.family == FamilyUnix {
		usa, err := unixSockaddr(host)
		if err != nil {
			return 0, s.fail("sendto", err)
		}
		sa = usa
	} else {
		addrs, err := resolve(ctx, s.family, s.kind, host, port, false)
		if err != nil {
			return 0, s.fail("sendto", err)
		}
		sa = addrs[0]
	}

	if !s.open {
		if s.kind != KindDatagram {
			return 0, s.fail("sendto", api.ErrClosed)
		}
		fd, err := s.openFD(false)
		if err != nil {
			return 0, s.fail("sendto", err)
		}
		s.setFD(fd)
	}
	for {
		err := unix.Sendto(s.fd, buf, sendFlags(flags), sa)
		switch err {
		case nil:
			return len(buf), nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, api.ErrWouldBlock
		}
		return 0, s.fail("sendto", os.NewSyscallError("sendto", err))
	}
}

// Recv reads into buf. A stream socket that reads zero bytes returns
// api.ErrPeerClosed.
func (s *Socket) Recv(buf []byte, flags int) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if !s.open {
		return 0, s.fail("recv", api.ErrClosed)
	}
	for {
		n, _, err := unix.Recvfrom(s.fd, buf, flags)
		switch err {
		case nil:
			if n == 0 && s.kind == KindStream {
				return 0, s.fail("recv", api.ErrPeerClosed)
			}
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, api.ErrWouldBlock
		}
		return 0, s.fail("recv", os.NewSyscallError("recv", err))
	}
}

// SetBlocking switches the descriptor's mode. On a closed socket it only
// changes the mode used by the next Listen, Connect or Accept.
func (s *Socket) SetBlocking(blocking bool) error {
	if s.open {
		if err := unix.SetNonblock(s.fd, !blocking); err != nil {
			return s.fail("setblocking", os.NewSyscallError("setnonblock", err))
		}
	}
	s.blocking = blocking
	return nil
}

// SetRecvTimeout sets SO_RCVTIMEO in milliseconds; 0 disables it.
func (s *Socket) SetRecvTimeout(ms int) error {
	return s.setTimeout("setrcvtimeo", unix.SO_RCVTIMEO, ms)
}

// SetSendTimeout sets SO_SNDTIMEO in milliseconds; 0 disables it.
func (s *Socket) SetSendTimeout(ms int) error {
	return s.setTimeout("setsndtimeo", unix.SO_SNDTIMEO, ms)
}

func (s *Socket) setTimeout(op string, opt, ms int) error {
	if !s.open {
		return s.fail(op, api.ErrClosed)
	}
	if ms < 0 {
		return s.fail(op, fmt.Errorf("negative timeout %d: %w", ms, api.ErrInvalidArgument))
	}
	tv := unix.NsecToTimeval((time.Duration(ms) * time.Millisecond).Nanoseconds())
	if err := unix.SetsockoptTimeval(s.fd, unix.SOL_SOCKET, opt, &tv); err != nil {
		return s.fail(op, os.NewSyscallError("setsockopt", err))
	}
	return nil
}

// LocalAddr formats the bound endpoint. On failure it returns "".
func (s *Socket) LocalAddr() (string, error) {
	if !s.open {
		return "", s.fail("getsockname", api.ErrClosed)
	}
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return "", s.fail("getsockname", os.NewSyscallError("getsockname", err))
	}
	addr, err := formatSockaddr(sa)
	if err != nil {
		return "", s.fail("getsockname", err)
	}
	return addr, nil
}

// RemoteAddr formats the peer endpoint. On failure it returns "".
func (s *Socket) RemoteAddr() (string, error) {
	if !s.open {
		return "", s.fail("getpeername", api.ErrClosed)
	}
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return "", s.fail("getpeername", os.NewSyscallError("getpeername", err))
	}
	addr, err := formatSockaddr(sa)
	if err != nil {
		return "", s.fail("getpeername", err)
	}
	return addr, nil
}

// Term closes the descriptor exactly once. Calling it on a closed socket is
// a no-op. A unix listener's path is removed.
func (s *Socket) Term() error {
	if !s.open {
		return nil
	}
	fd, path := s.fd, s.path
	s.fd, s.open, s.path = closedFD, false, ""

	err := unix.Close(fd)
	if path != "" {
		if uerr := unix.Unlink(path); uerr != nil && uerr != unix.ENOENT {
			s.logger().Debug("unlink unix socket path", zap.String("path", path), zap.Error(uerr))
		}
	}
	if err != nil && !errors.Is(err, unix.EINTR) {
		return s.fail("close", os.NewSyscallError("close", err))
	}
	return nil
}
