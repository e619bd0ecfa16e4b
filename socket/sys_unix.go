//go:build unix

// File: socket/sys_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Descriptor creation and implicit option policy.

package socket

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func (k Kind) sotype() int {
	if k == KindDatagram {
		return unix.SOCK_DGRAM
	}
	return unix.SOCK_STREAM
}

func (f Family) domain() int {
	switch f {
	case FamilyIPv6:
		return unix.AF_INET6
	case FamilyUnix:
		return unix.AF_UNIX
	default:
		return unix.AF_INET
	}
}

// sysSocket creates a close-on-exec descriptor. ForkLock keeps a concurrent
// fork from inheriting it before the flag is set.
func sysSocket(family, sotype, proto int) (int, error) {
	syscall.ForkLock.RLock()
	fd, err := unix.Socket(family, sotype, proto)
	if err == nil {
		unix.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return closedFD, os.NewSyscallError("socket", err)
	}
	return fd, nil
}

// sysAccept accepts one connection, retrying EINTR and ECONNABORTED.
func sysAccept(fd int) (int, unix.Sockaddr, error) {
	for {
		syscall.ForkLock.RLock()
		nfd, sa, err := unix.Accept(fd)
		if err == nil {
			unix.CloseOnExec(nfd)
		}
		syscall.ForkLock.RUnlock()
		switch err {
		case nil:
			return nfd, sa, nil
		case unix.EINTR, unix.ECONNABORTED:
			continue
		}
		return closedFD, nil, err
	}
}

// openFD creates a descriptor for s's family and kind in s's blocking mode.
// The caller owns the descriptor and must close it on any later failure.
func (s *Socket) openFD(listener bool) (int, error) {
	fd, err := sysSocket(s.family.domain(), s.kind.sotype(), 0)
	if err != nil {
		return closedFD, err
	}
	if err := unix.SetNonblock(fd, !s.blocking); err != nil {
		unix.Close(fd)
		return closedFD, os.NewSyscallError("setnonblock", err)
	}
	if listener && s.family != FamilyUnix {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			unix.Close(fd)
			return closedFD, os.NewSyscallError("setsockopt SO_REUSEADDR", err)
		}
	}
	if s.family == FamilyIPv6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			unix.Close(fd)
			return closedFD, os.NewSyscallError("setsockopt IPV6_V6ONLY", err)
		}
	}
	if err := s.applyPolicy(fd); err != nil {
		unix.Close(fd)
		return closedFD, err
	}
	return fd, nil
}

// applyPolicy sets no-delay (TCP only) and buffer sizes on fd.
func (s *Socket) applyPolicy(fd int) error {
	p := s.policy
	if p.NoDelay && s.kind == KindStream && s.family != FamilyUnix {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return os.NewSyscallError("setsockopt TCP_NODELAY", err)
		}
	}
	if p.SendBuffer > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, p.SendBuffer); err != nil {
			return os.NewSyscallError("setsockopt SO_SNDBUF", err)
		}
	}
	if p.RecvBuffer > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, p.RecvBuffer); err != nil {
			return os.NewSyscallError("setsockopt SO_RCVBUF", err)
		}
	}
	return nil
}

func (s *Socket) backlog() int {
	if s.policy.Backlog > 0 {
		return s.policy.Backlog
	}
	return maxListenerBacklog()
}
