//go:build unix

package socket_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/socket"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"
)

var families = []socket.Family{socket.FamilyIPv4, socket.FamilyIPv6, socket.FamilyUnix}

func TestSocket_RoundTripAllFamilies(t *testing.T) {
	for _, family := range families {
		t.Run(family.String(), func(t *testing.T) {
			client, server := connectedPair(t, family)

			payload := make([]byte, 512<<10)
			for i := range payload {
				payload[i] = byte(i % 251)
			}

			done := make(chan error, 1)
			go func() {
				sent := 0
				for sent < len(payload) {
					n, err := client.Send(payload[sent:], 0)
					if err != nil {
						done <- err
						return
					}
					sent += n
				}
				done <- nil
			}()

			got := make([]byte, 0, len(payload))
			buf := make([]byte, 32<<10)
			for len(got) < len(payload) {
				n, err := server.Recv(buf, 0)
				if err != nil {
					t.Fatalf("recv after %d bytes: %v", len(got), err)
				}
				got = append(got, buf[:n]...)
			}
			if err := <-done; err != nil {
				t.Fatalf("send: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatal("payload corrupted or reordered")
			}
		})
	}
}

func TestSocket_ZeroValueAndInit(t *testing.T) {
	var s socket.Socket
	if s.FD() != -1 || s.IsOpen() {
		t.Fatalf("zero value should be closed, fd=%d", s.FD())
	}
	s.Init(socket.KindDatagram, true, socket.FamilyUnix)
	if s.Kind() != socket.KindDatagram || s.Family() != socket.FamilyUnix || !s.Blocking() {
		t.Errorf("metadata not set: %v %v %v", s.Kind(), s.Family(), s.Blocking())
	}
	if s.Policy() != socket.DefaultPolicy() {
		t.Errorf("policy: %+v", s.Policy())
	}
	if err := s.Term(); err != nil {
		t.Errorf("term on closed socket: %v", err)
	}
}

func TestSocket_TermIdempotent(t *testing.T) {
	ln, _, _ := listen(t, socket.KindStream, socket.FamilyIPv4)
	if err := ln.Term(); err != nil {
		t.Fatalf("first term: %v", err)
	}
	if ln.FD() != -1 {
		t.Fatalf("fd not reset: %d", ln.FD())
	}
	if err := ln.Term(); err != nil {
		t.Fatalf("second term: %v", err)
	}
}

func TestSocket_ZeroLengthNoSyscall(t *testing.T) {
	s := socket.New(socket.KindStream, false, socket.FamilyIPv4)
	if n, err := s.Send(nil, 0); n != 0 || err != nil {
		t.Errorf("send empty on closed socket: %d %v", n, err)
	}
	if n, err := s.Recv([]byte{}, 0); n != 0 || err != nil {
		t.Errorf("recv empty on closed socket: %d %v", n, err)
	}
	if _, err := s.Send([]byte("x"), 0); !errors.Is(err, api.ErrClosed) {
		t.Errorf("send on closed socket: %v", err)
	}
}

func TestSocket_UnixPathTooLong(t *testing.T) {
	before := openFDs(t)
	s := socket.New(socket.KindStream, false, socket.FamilyUnix)
	path := "/tmp/" + strings.Repeat("p", 200)
	err := s.Listen(context.Background(), path, "")
	if !errors.Is(err, api.ErrPathTooLong) {
		t.Fatalf("expected ErrPathTooLong, got %v", err)
	}
	if s.IsOpen() || s.LastError() == "" {
		t.Errorf("open=%v lastErr=%q", s.IsOpen(), s.LastError())
	}
	if err := s.Connect(context.Background(), path, "", "", ""); !errors.Is(err, api.ErrPathTooLong) {
		t.Errorf("connect: expected ErrPathTooLong, got %v", err)
	}
	if after := openFDs(t); before >= 0 && after != before {
		t.Errorf("descriptor leak: %d -> %d", before, after)
	}
}

func TestSocket_InvalidPort(t *testing.T) {
	s := socket.New(socket.KindStream, false, socket.FamilyIPv4)
	for _, port := range []string{"70000", "-1"} {
		err := s.Listen(context.Background(), "127.0.0.1", port)
		if !errors.Is(err, api.ErrInvalidArgument) {
			t.Errorf("port %s: expected ErrInvalidArgument, got %v", port, err)
		}
	}
	if err := s.Listen(context.Background(), "127.0.0.1", "no-such-service-name"); err == nil {
		t.Error("expected unknown service to fail")
	}
}

func TestSocket_ListenAddressInUse(t *testing.T) {
	_, host, port := listen(t, socket.KindStream, socket.FamilyIPv4)
	before := openFDs(t)

	second := socket.New(socket.KindStream, false, socket.FamilyIPv4)
	err := second.Listen(context.Background(), host, port)
	if !errors.Is(err, unix.EADDRINUSE) {
		t.Fatalf("expected EADDRINUSE, got %v", err)
	}
	if !strings.Contains(second.LastError(), "bind") {
		t.Errorf("last error should name the failing call: %q", second.LastError())
	}
	if after := openFDs(t); before >= 0 && after != before {
		t.Errorf("descriptor leak: %d -> %d", before, after)
	}
}

func TestSocket_FailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := socket.New(socket.KindStream, false, socket.FamilyUnix)
	s.SetLogger(zap.New(core))

	if err := s.Listen(context.Background(), "", ""); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("empty path: %v", err)
	}
	entries := logs.FilterMessage("socket operation failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["op"] != "listen" || fields["family"] != "unix" {
		t.Errorf("fields: %v", fields)
	}
}

func TestSocket_ListenTwiceRejected(t *testing.T) {
	ln, _, _ := listen(t, socket.KindStream, socket.FamilyIPv4)
	if err := ln.Listen(context.Background(), "127.0.0.1", "0"); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSocket_NonBlockingWouldBlock(t *testing.T) {
	ln, host, port := listen(t, socket.KindStream, socket.FamilyIPv4)
	if err := ln.SetBlocking(false); err != nil {
		t.Fatal(err)
	}
	var none socket.Socket
	if err := ln.Accept(&none); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("accept with nothing pending: %v", err)
	}
	if ln.LastError() != "" {
		t.Errorf("would-block must not be recorded as failure: %q", ln.LastError())
	}

	client := socket.New(socket.KindStream, true, socket.FamilyIPv4)
	if err := client.Connect(context.Background(), host, port, "", ""); err != nil {
		t.Fatal(err)
	}
	defer client.Term()

	server := &socket.Socket{}
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := ln.Accept(server)
		if err == nil {
			break
		}
		if !errors.Is(err, api.ErrWouldBlock) || time.Now().After(deadline) {
			t.Fatalf("accept: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	defer server.Term()

	if server.Blocking() {
		t.Error("accepted socket should inherit non-blocking mode")
	}
	buf := make([]byte, 8)
	if _, err := server.Recv(buf, 0); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("recv with no data: %v", err)
	}
}

func TestSocket_RecvPeerClosed(t *testing.T) {
	client, server := connectedPair(t, socket.FamilyIPv4)
	if _, err := client.Send([]byte("bye"), 0); err != nil {
		t.Fatal(err)
	}
	client.Term()

	buf := make([]byte, 16)
	n, err := server.Recv(buf, 0)
	if err != nil || string(buf[:n]) != "bye" {
		t.Fatalf("first recv: %q %v", buf[:n], err)
	}
	_, err = server.Recv(buf, 0)
	if !errors.Is(err, api.ErrPeerClosed) {
		t.Fatalf("expected ErrPeerClosed, got %v", err)
	}
	if api.StatusOf(err) != api.StatusError {
		t.Error("peer close must classify as an error")
	}
}

func TestSocket_Addresses(t *testing.T) {
	t.Run("ipv4", func(t *testing.T) {
		client, server := connectedPair(t, socket.FamilyIPv4)
		local, err := client.LocalAddr()
		if err != nil {
			t.Fatal(err)
		}
		peer, err := server.RemoteAddr()
		if err != nil {
			t.Fatal(err)
		}
		if local != peer || !strings.HasPrefix(local, "127.0.0.1:") {
			t.Errorf("client local %q, server remote %q", local, peer)
		}
	})
	t.Run("ipv6", func(t *testing.T) {
		client, _ := connectedPair(t, socket.FamilyIPv6)
		remote, err := client.RemoteAddr()
		if err != nil {
			t.Fatal(err)
		}
		host, _, err := net.SplitHostPort(remote)
		if err != nil || host != "::1" || !strings.HasPrefix(remote, "[::1]:") {
			t.Errorf("remote %q", remote)
		}
	})
	t.Run("unix", func(t *testing.T) {
		ln, path, _ := listen(t, socket.KindStream, socket.FamilyUnix)
		if got, err := ln.LocalAddr(); err != nil || got != path {
			t.Errorf("local %q %v, want %q", got, err, path)
		}
	})
	t.Run("closed", func(t *testing.T) {
		s := socket.New(socket.KindStream, false, socket.FamilyIPv4)
		if got, err := s.LocalAddr(); got != "" || !errors.Is(err, api.ErrClosed) {
			t.Errorf("closed local addr %q %v", got, err)
		}
	})
}

func TestSocket_PolicyApplied(t *testing.T) {
	ln, host, port := listen(t, socket.KindStream, socket.FamilyIPv4)
	if v, err := unix.GetsockoptInt(ln.FD(), unix.SOL_SOCKET, unix.SO_REUSEADDR); err != nil || v == 0 {
		t.Errorf("SO_REUSEADDR = %d %v", v, err)
	}

	client := socket.New(socket.KindStream, true, socket.FamilyIPv4)
	client.SetPolicy(socket.Policy{NoDelay: true, RecvBuffer: 64 << 10, SendBuffer: 64 << 10})
	if err := client.Connect(context.Background(), host, port, "", ""); err != nil {
		t.Fatal(err)
	}
	defer client.Term()

	if v, err := unix.GetsockoptInt(client.FD(), unix.IPPROTO_TCP, unix.TCP_NODELAY); err != nil || v == 0 {
		t.Errorf("TCP_NODELAY = %d %v", v, err)
	}
	if v, err := unix.GetsockoptInt(client.FD(), unix.SOL_SOCKET, unix.SO_RCVBUF); err != nil || v < 64<<10 {
		t.Errorf("SO_RCVBUF = %d %v", v, err)
	}

	accepted := &socket.Socket{}
	if err := ln.Accept(accepted); err != nil {
		t.Fatal(err)
	}
	defer accepted.Term()
	if v, err := unix.GetsockoptInt(accepted.FD(), unix.IPPROTO_TCP, unix.TCP_NODELAY); err != nil || v == 0 {
		t.Errorf("accepted TCP_NODELAY = %d %v", v, err)
	}
}

func TestSocket_IPv6Only(t *testing.T) {
	ln, _, _ := listen(t, socket.KindStream, socket.FamilyIPv6)
	if v, err := unix.GetsockoptInt(ln.FD(), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY); err != nil || v != 1 {
		t.Errorf("IPV6_V6ONLY = %d %v", v, err)
	}
}

func TestSocket_AcceptIntoOpenSocket(t *testing.T) {
	_, server := connectedPair(t, socket.FamilyIPv4)
	ln, _, _ := listen(t, socket.KindStream, socket.FamilyIPv4)
	if err := ln.Accept(server); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSocket_ConnectSourceAddress(t *testing.T) {
	ln, host, port := listen(t, socket.KindStream, socket.FamilyIPv4)
	client := socket.New(socket.KindStream, true, socket.FamilyIPv4)
	if err := client.Connect(context.Background(), host, port, "127.0.0.1", ""); err != nil {
		t.Fatal(err)
	}
	defer client.Term()
	server := &socket.Socket{}
	if err := ln.Accept(server); err != nil {
		t.Fatal(err)
	}
	defer server.Term()
	remote, _ := server.RemoteAddr()
	if !strings.HasPrefix(remote, "127.0.0.1:") {
		t.Errorf("remote %q", remote)
	}
}

func TestSocket_ConnectRefusedBlocking(t *testing.T) {
	ln, host, port := listen(t, socket.KindStream, socket.FamilyIPv4)
	ln.Term()

	before := openFDs(t)
	client := socket.New(socket.KindStream, true, socket.FamilyIPv4)
	err := client.Connect(context.Background(), host, port, "", "")
	if !errors.Is(err, unix.ECONNREFUSED) {
		t.Fatalf("expected ECONNREFUSED, got %v", err)
	}
	if client.IsOpen() {
		t.Error("failed connect must not keep a descriptor")
	}
	if after := openFDs(t); before >= 0 && after != before {
		t.Errorf("descriptor leak: %d -> %d", before, after)
	}
}

func TestSocket_RecvTimeout(t *testing.T) {
	_, server := connectedPair(t, socket.FamilyIPv4)
	if err := server.SetRecvTimeout(50); err != nil {
		t.Fatal(err)
	}
	if err := server.SetSendTimeout(50); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	buf := make([]byte, 4)
	if _, err := server.Recv(buf, 0); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("expected timeout as would-block, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("returned too early: %v", elapsed)
	}
	if err := server.SetRecvTimeout(-1); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("negative timeout: %v", err)
	}

	closed := socket.New(socket.KindStream, true, socket.FamilyIPv4)
	if err := closed.SetRecvTimeout(10); !errors.Is(err, api.ErrClosed) {
		t.Errorf("closed socket: %v", err)
	}
}

func TestSocket_UnixListenerCleansPath(t *testing.T) {
	path := tempSocketPath(t)
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	ln := socket.New(socket.KindStream, false, socket.FamilyUnix)
	if err := ln.Listen(context.Background(), path, ""); err != nil {
		t.Fatalf("listen over stale path: %v", err)
	}
	if err := ln.Term(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("path left behind: %v", err)
	}
}

func TestSocket_UnixDatagram(t *testing.T) {
	ln, path, _ := listen(t, socket.KindDatagram, socket.FamilyUnix)
	client := socket.New(socket.KindDatagram, true, socket.FamilyUnix)
	if err := client.Connect(context.Background(), path, "", "", ""); err != nil {
		t.Fatal(err)
	}
	defer client.Term()

	for _, msg := range []string{"one", "two"} {
		if _, err := client.Send([]byte(msg), 0); err != nil {
			t.Fatal(err)
		}
	}
	buf := make([]byte, 16)
	for _, want := range []string{"one", "two"} {
		n, err := ln.Recv(buf, 0)
		if err != nil || string(buf[:n]) != want {
			t.Fatalf("recv %q %v, want %q", buf[:n], err, want)
		}
	}
}

func TestSocket_ResolveHostname(t *testing.T) {
	ln := socket.New(socket.KindStream, false, socket.FamilyIPv4)
	if err := ln.Listen(context.Background(), "localhost", "0"); err != nil {
		t.Skipf("localhost does not resolve here: %v", err)
	}
	defer ln.Term()
	addr, _ := ln.LocalAddr()
	if !strings.HasPrefix(addr, "127.") {
		t.Errorf("localhost bound to %q", addr)
	}

	bad := socket.New(socket.KindStream, false, socket.FamilyIPv4)
	err := bad.Listen(context.Background(), "host.invalid", "0")
	var dnsErr *net.DNSError
	if !errors.As(err, &dnsErr) {
		t.Fatalf("expected resolver error, got %v", err)
	}
	if bad.LastError() == "" {
		t.Error("resolver failure not recorded")
	}
}

func TestSocket_FamilyMismatch(t *testing.T) {
	s := socket.New(socket.KindStream, false, socket.FamilyIPv4)
	if err := s.Listen(context.Background(), "::1", "0"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("ipv6 literal on ipv4 socket: %v", err)
	}
}

func TestParseFamily(t *testing.T) {
	for in, want := range map[string]socket.Family{"ipv4": socket.FamilyIPv4, "ipv6": socket.FamilyIPv6, "unix": socket.FamilyUnix} {
		got, err := socket.ParseFamily(in)
		if err != nil || got != want {
			t.Errorf("ParseFamily(%q) = %v %v", in, got, err)
		}
	}
	if _, err := socket.ParseFamily("sctp"); err == nil {
		t.Error("expected error")
	}
}

func TestSocket_SendToDatagram(t *testing.T) {
	for _, family := range []socket.Family{socket.FamilyIPv4, socket.FamilyUnix} {
		t.Run(family.String(), func(t *testing.T) {
			ln, host, port := listen(t, socket.KindDatagram, family)
			client := socket.New(socket.KindDatagram, true, family)
			defer client.Term()

			n, err := client.SendTo(context.Background(), []byte("datagram"), host, port, 0)
			if err != nil || n != len("datagram") {
				t.Fatalf("sendto %d %v", n, err)
			}
			if !client.IsOpen() {
				t.Error("sendto should leave the datagram socket open")
			}
			buf := make([]byte, 32)
			if n, err := ln.Recv(buf, 0); err != nil || string(buf[:n]) != "datagram" {
				t.Fatalf("recv %q %v", buf[:n], err)
			}
		})
	}
}

func TestSocket_SendToRejects(t *testing.T) {
	stream := socket.New(socket.KindStream, false, socket.FamilyIPv4)
	if _, err := stream.SendTo(context.Background(), []byte("x"), "127.0.0.1", "9", 0); !errors.Is(err, api.ErrClosed) {
		t.Errorf("closed stream socket: %v", err)
	}
	dgram := socket.New(socket.KindDatagram, false, socket.FamilyUnix)
	if _, err := dgram.SendTo(context.Background(), []byte("x"), "/tmp/"+strings.Repeat("q", 200), "", 0); !errors.Is(err, api.ErrPathTooLong) {
		t.Errorf("long path: %v", err)
	}
	if dgram.IsOpen() {
		t.Error("failed sendto must not open a descriptor")
	}
}

func TestSocket_SendAfterPeerCloseReturnsError(t *testing.T) {
	client, server := connectedPair(t, socket.FamilyIPv4)
	server.Term()

	chunk := make([]byte, 64<<10)
	deadline := time.Now().Add(3 * time.Second)
	var err error
	for err == nil && time.Now().Before(deadline) {
		_, err = client.Send(chunk, 0)
	}
	if !errors.Is(err, unix.EPIPE) && !errors.Is(err, unix.ECONNRESET) {
		t.Fatalf("expected EPIPE or ECONNRESET, got %v", err)
	}
}
