// File: socket/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral socket metadata and bookkeeping.

package socket

import (
	"fmt"

	"go.uber.org/zap"
)

// Kind selects the socket type.
type Kind int

const (
	KindStream Kind = iota
	KindDatagram
)

func (k Kind) String() string {
	if k == KindDatagram {
		return "datagram"
	}
	return "stream"
}

// Family selects the address family.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
	FamilyUnix
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	case FamilyUnix:
		return "unix"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// ParseFamily maps "ipv4", "ipv6" and "unix" to a Family.
func ParseFamily(s string) (Family, error) {
	switch s {
	case "ipv4", "ip4", "inet":
		return FamilyIPv4, nil
	case "ipv6", "ip6", "inet6":
		return FamilyIPv6, nil
	case "unix", "local":
		return FamilyUnix, nil
	}
	return 0, fmt.Errorf("unknown address family %q", s)
}

// Policy is applied to every descriptor opened by Listen, Connect or Accept.
// Zero buffer sizes keep the kernel defaults; a zero Backlog uses the
// kernel's somaxconn.
type Policy struct {
	SendBuffer int
	RecvBuffer int
	NoDelay    bool
	Backlog    int
}

// DefaultPolicy returns the policy New installs.
func DefaultPolicy() Policy {
	return Policy{
		SendBuffer: 256 << 10,
		RecvBuffer: 256 << 10,
		NoDelay:    true,
	}
}

const closedFD = -1

// Socket owns at most one native descriptor. It is not safe for concurrent
// use. The zero value is a closed IPv4 stream socket in non-blocking mode
// with a zero Policy; use New or Init to pick the defaults.
type Socket struct {
	fd       int
	open     bool
	kind     Kind
	family   Family
	blocking bool
	policy   Policy
	path     string // unix listener path removed on Term
	lastErr  string
	log      *zap.Logger
}

// New returns an initialized, closed socket. No system call is made.
func New(kind Kind, blocking bool, family Family) *Socket {
	s := &Socket{}
	s.Init(kind, blocking, family)
	return s
}

// Init resets metadata on a closed socket. It must not be called while a
// descriptor is open; Term it first.
func (s *Socket) Init(kind Kind, blocking bool, family Family) {
	log := s.log
	*s = Socket{
		fd:       closedFD,
		kind:     kind,
		family:   family,
		blocking: blocking,
		policy:   DefaultPolicy(),
		log:      log,
	}
}

// SetPolicy replaces the policy used by subsequent Listen, Connect and Accept.
func (s *Socket) SetPolicy(p Policy) { s.policy = p }

// Policy returns the current policy.
func (s *Socket) Policy() Policy { return s.policy }

// SetLogger attaches a logger; failures are logged at debug level.
func (s *Socket) SetLogger(l *zap.Logger) { s.log = l }

// FD returns the descriptor, or -1 when closed.
func (s *Socket) FD() int {
	if !s.open {
		return closedFD
	}
	return s.fd
}

// IsOpen reports whether the socket owns a descriptor.
func (s *Socket) IsOpen() bool { return s.open }

func (s *Socket) Kind() Kind        { return s.kind }
func (s *Socket) Family() Family    { return s.family }
func (s *Socket) Blocking() bool    { return s.blocking }
func (s *Socket) LastError() string { return s.lastErr }

func (s *Socket) logger() *zap.Logger {
	if s.log == nil {
		return zap.NewNop()
	}
	return s.log
}

func (s *Socket) setFD(fd int) {
	s.fd = fd
	s.open = true
}

// fail records err as the last error and returns it unchanged.
func (s *Socket) fail(op string, err error) error {
	s.lastErr = err.Error()
	s.logger().Debug("socket operation failed",
		zap.String("op", op),
		zap.Int("fd", s.FD()),
		zap.Stringer("family", s.family),
		zap.Error(err),
	)
	return err
}
