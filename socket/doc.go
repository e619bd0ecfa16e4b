// File: socket/doc.go
// Package socket
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw socket handles over IPv4, IPv6 and Unix-domain addressing, built
// directly on golang.org/x/sys/unix so that descriptors can be registered
// with a readiness multiplexer (see package reactor).
//
// Every operation reports failure through its returned error and records
// the message in LastError. Transient conditions are never failures: a
// non-blocking call that cannot progress returns api.ErrWouldBlock, and a
// stream Recv that reads zero bytes returns api.ErrPeerClosed.
//
// Each successful Listen, Connect and Accept applies the socket's Policy
// (no-delay, buffer sizes, backlog). The policy is a deployment setting,
// not a per-call option.
package socket
