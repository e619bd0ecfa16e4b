//go:build !unix

// File: socket/socket_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package socket

import (
	"context"

	"github.com/momentics/hioload-net/api"
)

const NotifySocketEnv = "NOTIFY_SOCKET"

func (s *Socket) Listen(ctx context.Context, host, port string) error {
	return s.fail("listen", api.ErrNotSupported)
}

func (s *Socket) Connect(ctx context.Context, dstHost, dstPort, srcHost, srcPort string) error {
	return s.fail("connect", api.ErrNotSupported)
}

func (s *Socket) FinishConnect() error      { return s.fail("connect", api.ErrNotSupported) }
func (s *Socket) Accept(into *Socket) error { return s.fail("accept", api.ErrNotSupported) }

func (s *Socket) Send(buf []byte, flags int) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	return 0, s.fail("send", api.ErrNotSupported)
}

func (s *Socket) SendTo(ctx context.Context, buf []byte, host, port string, flags int) (int, error) {
	return 0, s.fail("sendto", api.ErrNotSupported)
}

func (s *Socket) Recv(buf []byte, flags int) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	return 0, s.fail("recv", api.ErrNotSupported)
}

func (s *Socket) SetBlocking(blocking bool) error {
	s.blocking = blocking
	return nil
}

func (s *Socket) SetRecvTimeout(ms int) error { return s.fail("setrcvtimeo", api.ErrNotSupported) }
func (s *Socket) SetSendTimeout(ms int) error { return s.fail("setsndtimeo", api.ErrNotSupported) }

func (s *Socket) LocalAddr() (string, error)  { return "", s.fail("getsockname", api.ErrNotSupported) }
func (s *Socket) RemoteAddr() (string, error) { return "", s.fail("getpeername", api.ErrNotSupported) }

func (s *Socket) Term() error { return nil }

func Notify(state string) error { return api.ErrNotSupported }
func NotifyReady() error        { return api.ErrNotSupported }
