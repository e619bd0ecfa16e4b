//go:build unix

package socket_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/momentics/hioload-net/socket"
)

// tempSocketPath returns a short unique path; sun_path is small on macOS.
func tempSocketPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(os.TempDir(), "hn-"+uuid.NewString()[:13]+".sock")
	t.Cleanup(func() { os.Remove(path) })
	return path
}

// listen opens a blocking listener on a loopback endpoint of family and
// returns it with the host and port to dial.
func listen(t *testing.T, kind socket.Kind, family socket.Family) (*socket.Socket, string, string) {
	t.Helper()
	ln := socket.New(kind, true, family)
	var host string
	switch family {
	case socket.FamilyIPv4:
		host = "127.0.0.1"
	case socket.FamilyIPv6:
		host = "::1"
	case socket.FamilyUnix:
		host = tempSocketPath(t)
	}
	if err := ln.Listen(context.Background(), host, "0"); err != nil {
		if family == socket.FamilyIPv6 {
			t.Skipf("ipv6 loopback unavailable: %v", err)
		}
		t.Fatalf("listen %s: %v", family, err)
	}
	t.Cleanup(func() { ln.Term() })
	if family == socket.FamilyUnix {
		return ln, host, ""
	}
	addr, err := ln.LocalAddr()
	if err != nil {
		t.Fatalf("local addr: %v", err)
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %q: %v", addr, err)
	}
	return ln, host, port
}

// connectedPair returns a blocking client and its accepted server end.
func connectedPair(t *testing.T, family socket.Family) (client, server *socket.Socket) {
	t.Helper()
	ln, host, port := listen(t, socket.KindStream, family)
	client = socket.New(socket.KindStream, true, family)
	if err := client.Connect(context.Background(), host, port, "", ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	server = &socket.Socket{}
	if err := ln.Accept(server); err != nil {
		t.Fatalf("accept: %v", err)
	}
	t.Cleanup(func() {
		client.Term()
		server.Term()
	})
	return client, server
}

// openFDs counts this process's descriptors; -1 where unsupported.
func openFDs(t *testing.T) int {
	t.Helper()
	if runtime.GOOS != "linux" {
		return -1
	}
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return -1
	}
	return len(entries)
}
