//go:build unix

// File: socket/notify_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Best-effort service readiness notification over NOTIFY_SOCKET.

package socket

import (
	"context"
	"fmt"
	"os"

	"github.com/momentics/hioload-net/api"
)

// NotifySocketEnv names the datagram socket a service manager listens on.
const NotifySocketEnv = "NOTIFY_SOCKET"

// Notify sends state (for example "READY=1" or "STATUS=...") as one datagram
// to the socket named by NOTIFY_SOCKET. A leading '@' selects the Linux
// abstract namespace. A missing variable, a bad path or a failed send is
// returned as an error; nothing else happens to the process.
func Notify(state string) error {
	path := os.Getenv(NotifySocketEnv)
	if path == "" {
		return fmt.Errorf("notify: %s not set: %w", NotifySocketEnv, api.ErrNotSupported)
	}
	s := New(KindDatagram, true, FamilyUnix)
	s.SetPolicy(Policy{})
	defer s.Term()

	if _, err := s.SendTo(context.Background(), []byte(state), path, "", 0); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// NotifyReady is Notify("READY=1").
func NotifyReady() error {
	return Notify("READY=1")
}
