//go:build unix

// File: socket/sockaddr_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Address resolution into unix.Sockaddr candidates and endpoint formatting.

package socket

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/momentics/hioload-net/api"
	"golang.org/x/sys/unix"
)

// maxPathLen leaves room for the terminating NUL in sun_path.
var maxPathLen = len(unix.RawSockaddrUnix{}.Path) - 1

// Resolver is used for host and service lookups. Tests may replace it.
var Resolver = net.DefaultResolver

func unixSockaddr(path string) (*unix.SockaddrUnix, error) {
	if path == "" {
		return nil, fmt.Errorf("empty unix socket path: %w", api.ErrInvalidArgument)
	}
	if len(path) > maxPathLen {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", api.ErrPathTooLong, len(path), maxPathLen)
	}
	return &unix.SockaddrUnix{Name: path}, nil
}

// resolvePort accepts a decimal port or a service name. An empty port is 0.
func resolvePort(ctx context.Context, kind Kind, port string) (int, error) {
	if port == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(port); err == nil {
		if n < 0 || n > 65535 {
			return 0, fmt.Errorf("port %d out of range: %w", n, api.ErrInvalidArgument)
		}
		return n, nil
	}
	network := "tcp"
	if kind == KindDatagram {
		network = "udp"
	}
	n, err := Resolver.LookupPort(ctx, network, port)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", port, err)
	}
	return n, nil
}

// resolve returns every candidate address for host:port in family order
// reported by the resolver. An empty host is the wildcard address when
// passive, loopback otherwise.
func resolve(ctx context.Context, family Family, kind Kind, host, port string, passive bool) ([]unix.Sockaddr, error) {
	p, err := resolvePort(ctx, kind, port)
	if err != nil {
		return nil, err
	}

	var addrs []netip.Addr
	switch {
	case host == "" && passive:
		if family == FamilyIPv6 {
			addrs = []netip.Addr{netip.IPv6Unspecified()}
		} else {
			addrs = []netip.Addr{netip.IPv4Unspecified()}
		}
	case host == "":
		if family == FamilyIPv6 {
			addrs = []netip.Addr{netip.IPv6Loopback()}
		} else {
			addrs = []netip.Addr{netip.AddrFrom4([4]byte{127, 0, 0, 1})}
		}
	default:
		if a, perr := netip.ParseAddr(host); perr == nil {
			addrs = []netip.Addr{a}
			break
		}
		network := "ip4"
		if family == FamilyIPv6 {
			network = "ip6"
		}
		addrs, err = Resolver.LookupNetIP(ctx, network, host)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", host, err)
		}
	}

	out := make([]unix.Sockaddr, 0, len(addrs))
	for _, a := range addrs {
		if sa := toSockaddr(family, a, p); sa != nil {
			out = append(out, sa)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("resolve %s: no %s address: %w", host, family, api.ErrNotFound)
	}
	return out, nil
}

// toSockaddr converts a to family, or returns nil when a belongs to the other
// IP family.
func toSockaddr(family Family, a netip.Addr, port int) unix.Sockaddr {
	switch family {
	case FamilyIPv4:
		a = a.Unmap()
		if !a.Is4() {
			return nil
		}
		return &unix.SockaddrInet4{Port: port, Addr: a.As4()}
	case FamilyIPv6:
		if !a.Is6() || a.Is4In6() {
			return nil
		}
		sa := &unix.SockaddrInet6{Port: port, Addr: a.As16()}
		if zone := a.Zone(); zone != "" {
			sa.ZoneId = zoneIndex(zone)
		}
		return sa
	}
	return nil
}

func zoneIndex(zone string) uint32 {
	if n, err := strconv.Atoi(zone); err == nil {
		return uint32(n)
	}
	if ifi, err := net.InterfaceByName(zone); err == nil {
		return uint32(ifi.Index)
	}
	return 0
}

func zoneName(index uint32) string {
	if ifi, err := net.InterfaceByIndex(int(index)); err == nil {
		return ifi.Name
	}
	return strconv.Itoa(int(index))
}

// formatSockaddr renders host:port for IP families and the raw path for
// Unix-domain addresses.
func formatSockaddr(sa unix.Sockaddr) (string, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(netip.AddrFrom4(a.Addr).String(), strconv.Itoa(a.Port)), nil
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(a.Addr)
		if a.ZoneId != 0 {
			addr = addr.WithZone(zoneName(a.ZoneId))
		}
		return net.JoinHostPort(addr.String(), strconv.Itoa(a.Port)), nil
	case *unix.SockaddrUnix:
		return a.Name, nil
	case nil:
		return "", fmt.Errorf("no address: %w", api.ErrNotFound)
	}
	return "", fmt.Errorf("unsupported address type %T: %w", sa, api.ErrNotSupported)
}
