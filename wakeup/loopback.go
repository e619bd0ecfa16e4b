// File: wakeup/loopback.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Loopback TCP pair for platforms where a pipe cannot be registered with the
// multiplexer.

package wakeup

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/socket"
)

// NewLoopback builds a channel from a connected 127.0.0.1 TCP pair with
// no-delay set. The listener used to pair the ends is closed before return.
func NewLoopback() (*Channel, error) {
	policy := socket.Policy{NoDelay: true, Backlog: 1}

	ln := socket.New(socket.KindStream, true, socket.FamilyIPv4)
	ln.SetPolicy(policy)
	if err := ln.Listen(context.Background(), "127.0.0.1", "0"); err != nil {
		return nil, fmt.Errorf("wakeup loopback: %w", err)
	}
	defer ln.Term()

	addr, err := ln.LocalAddr()
	if err != nil {
		return nil, fmt.Errorf("wakeup loopback: %w", err)
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("wakeup loopback: %w", err)
	}

	ws := socket.New(socket.KindStream, true, socket.FamilyIPv4)
	ws.SetPolicy(policy)
	if err := ws.Connect(context.Background(), "127.0.0.1", port, "", ""); err != nil {
		return nil, fmt.Errorf("wakeup loopback: %w", err)
	}
	if err := ln.SetRecvTimeout(int(time.Second / time.Millisecond)); err != nil {
		ws.Term()
		return nil, fmt.Errorf("wakeup loopback: %w", err)
	}
	rs := &socket.Socket{}
	if err := ln.Accept(rs); err != nil {
		ws.Term()
		return nil, fmt.Errorf("wakeup loopback: %w", err)
	}
	if err := verifyPeer(rs, ws); err != nil {
		rs.Term()
		ws.Term()
		return nil, fmt.Errorf("wakeup loopback: %w", err)
	}
	if err := rs.SetBlocking(false); err != nil {
		rs.Term()
		ws.Term()
		return nil, fmt.Errorf("wakeup loopback: %w", err)
	}
	if err := ws.SetBlocking(false); err != nil {
		rs.Term()
		ws.Term()
		return nil, fmt.Errorf("wakeup loopback: %w", err)
	}
	return &Channel{rfd: rs.FD(), wfd: ws.FD(), rs: rs, ws: ws}, nil
}

// verifyPeer makes sure the accepted end belongs to our connecting end and
// not to a stranger that raced us to the ephemeral port.
func verifyPeer(accepted, connected *socket.Socket) error {
	remote, err := accepted.RemoteAddr()
	if err != nil {
		return err
	}
	local, err := connected.LocalAddr()
	if err != nil {
		return err
	}
	if remote != local {
		return fmt.Errorf("unexpected peer %s: %w", remote, api.ErrInvalidArgument)
	}
	return nil
}
