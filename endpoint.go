// Package endpoint provides utilities for turning textual "host:port"
// specifications into resolvable socket endpoints and for rendering socket
// addresses back into their canonical textual form.
package endpoint

import (
	"fmt"
	"net"
	"net/netip"
)

// Family identifies the address family of an endpoint. The values mirror
// the POSIX AF_* numbers so diagnostic output lines up with what operators
// see in system tooling. Unknown values are representable and render
// through the generic fallback.
type Family int

const (
	FamilyUnspec Family = 0
	FamilyUnix   Family = 1
	FamilyIPv4   Family = 2
	FamilyIPv6   Family = 10
)

// Endpoint is a single resolved socket address candidate: an address
// family, an IP address and port, or a filesystem path for unix domain
// sockets.
type Endpoint struct {
	Family Family
	Addr   netip.Addr
	Port   uint16
	// Path is the socket path for FamilyUnix endpoints.
	Path string
}

// String renders the endpoint in its canonical textual form:
// "A.B.C.D:PORT" for IPv4, "[IPv6]:PORT" for IPv6, the bare filesystem
// path for unix domain sockets, and "<addr family N>" for anything else.
// It always produces some representation; an endpoint whose address does
// not match its claimed family degrades to the generic fallback.
func (e Endpoint) String() string {
	switch e.Family {
	case FamilyIPv4:
		if addr := e.Addr.Unmap(); addr.Is4() {
			return netip.AddrPortFrom(addr, e.Port).String()
		}
	case FamilyIPv6:
		if e.Addr.Is6() && !e.Addr.Is4In6() {
			return netip.AddrPortFrom(e.Addr, e.Port).String()
		}
	case FamilyUnix:
		return e.Path
	}

	return fmt.Sprintf("<addr family %d>", e.Family)
}

// AddrPort returns the endpoint as a netip.AddrPort. Unix and
// unknown-family endpoints return the zero AddrPort.
func (e Endpoint) AddrPort() netip.AddrPort {
	switch e.Family {
	case FamilyIPv4, FamilyIPv6:
		if e.Addr.IsValid() {
			return netip.AddrPortFrom(e.Addr, e.Port)
		}
	}

	return netip.AddrPort{}
}

// FromAddr converts a standard library net.Addr into an Endpoint.
// Unrecognized address implementations map to FamilyUnspec.
func FromAddr(addr net.Addr) Endpoint {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return fromIP(a.IP, a.Port)
	case *net.UDPAddr:
		return fromIP(a.IP, a.Port)
	case *net.IPAddr:
		return fromIP(a.IP, 0)
	case *net.UnixAddr:
		return Endpoint{Family: FamilyUnix, Path: a.Name}
	}

	return Endpoint{Family: FamilyUnspec}
}

// FormatAddr renders a net.Addr in canonical form. It never fails: an
// address it does not specifically understand still yields the
// "<addr family N>" fallback text.
func FormatAddr(addr net.Addr) string {
	return FromAddr(addr).String()
}

func fromIP(ip net.IP, port int) Endpoint {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok || port < 0 || port > 65535 {
		return Endpoint{Family: FamilyUnspec}
	}

	return fromAddrPort(addr, uint16(port))
}

func fromAddrPort(addr netip.Addr, port uint16) Endpoint {
	addr = addr.Unmap()

	family := FamilyIPv6
	if addr.Is4() {
		family = FamilyIPv4
	}

	return Endpoint{Family: family, Addr: addr, Port: port}
}
